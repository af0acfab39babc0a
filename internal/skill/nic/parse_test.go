package nic

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/stretchr/testify/require"
)

func TestParseDepartmentTable(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`
		<html><body>
		<table>
			<tr><th>Sr</th><th>Name</th><th>Count</th></tr>
			<tr><td>1</td><td><a href="/dept/pwd">PWD</a></td><td>12</td></tr>
			<tr><td>2</td><td>Health</td><td></td></tr>
		</table>
		</body></html>
	`))
	require.NoError(t, err)

	depts := parseDepartmentTable(doc)
	require.Len(t, depts, 2)

	require.Equal(t, "1", depts[0].SerialNo)
	require.Equal(t, "PWD", depts[0].Name)
	require.NotNil(t, depts[0].TenderCount)
	require.Equal(t, 12, *depts[0].TenderCount)
	require.NotNil(t, depts[0].DirectURL)
	require.Equal(t, "/dept/pwd", *depts[0].DirectURL)

	require.Equal(t, "Health", depts[1].Name)
	require.Nil(t, depts[1].TenderCount)
}

func TestParseDepartmentTableNoTable(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><body><p>no table here</p></body></html>`))
	require.NoError(t, err)
	require.Nil(t, parseDepartmentTable(doc))
}
