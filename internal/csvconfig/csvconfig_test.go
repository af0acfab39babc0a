package csvconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/scoutd/internal/model"
)

func TestParseMinimalColumns(t *testing.T) {
	csv := "Name,BaseURL,Keyword\n" +
		"HP,https://hp.example.test,tender\n" +
		" MP ,https://mp.example.test, tender \n"

	portals, err := parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, portals, 2)
	require.Equal(t, "HP", portals[0].Name)
	require.Equal(t, "https://hp.example.test", portals[0].BaseURL)
	require.Equal(t, "MP", portals[1].Name)
}

func TestParseAdditiveOptionalColumns(t *testing.T) {
	csv := "Name,BaseURL,Keyword,Category,SkillID,RateLimitRPM,CooldownSeconds\n" +
		"HP,https://hp.example.test,tender,State,nic,45,30\n"

	portals, err := parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, portals, 1)
	require.Equal(t, model.CategoryState, portals[0].Category)
	require.Equal(t, "nic", portals[0].SkillID)
	require.Equal(t, 45, portals[0].RateLimitRPM)
	require.Equal(t, 30, portals[0].CooldownSeconds)
}

func TestParseMissingRequiredColumnErrors(t *testing.T) {
	csv := "Name,BaseURL\nHP,https://hp.example.test\n"
	_, err := parse(strings.NewReader(csv))
	require.Error(t, err)
}

func TestParseMissingNameOrBaseURLErrors(t *testing.T) {
	csv := "Name,BaseURL,Keyword\n,https://hp.example.test,tender\n"
	_, err := parse(strings.NewReader(csv))
	require.Error(t, err)
}

func TestFindByNameIsCaseSensitive(t *testing.T) {
	portals := []model.Portal{{Name: "HP"}, {Name: "hp"}}
	found, ok := FindByName(portals, "HP")
	require.True(t, ok)
	require.Equal(t, "HP", found.Name)

	_, ok = FindByName(portals, "Hp")
	require.False(t, ok)
}
