package nic

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"github.com/ysmood/gson"

	"github.com/tenderwatch/scoutd/internal/model"
)

// parseDepartmentTable takes the first table in doc, whatever its shape,
// treating row 1 as a header and the rest as
// (serial, name, count, [link]) — the shape the NIC/eProcure organisation
// list renders server-side.
func parseDepartmentTable(doc *html.Node) []model.Department {
	table := findFirstTable(doc)
	if table == nil {
		return nil
	}

	var depts []model.Department
	rows := findAll(table, "tr")
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		cells := findAll(row, "td")
		if len(cells) < 2 {
			continue
		}
		name := strings.TrimSpace(textContent(cells[1]))
		if name == "" {
			continue
		}
		d := model.Department{
			SerialNo: strings.TrimSpace(textContent(cells[0])),
			Name:     name,
		}
		if len(cells) > 2 {
			countText := strings.TrimSpace(textContent(cells[2]))
			d.TenderCountText = countText
			if n, err := strconv.Atoi(countText); err == nil {
				d.TenderCount = &n
			}
		}
		if a := findFirst(cells[1], "a"); a != nil {
			if href := attr(a, "href"); href != "" {
				d.DirectURL = &href
			}
		}
		depts = append(depts, d)
	}
	return depts
}

// decodeDepartmentRows converts the browser-script result of
// departmentTableScript into Department values.
func decodeDepartmentRows(rows []gson.JSON) []model.Department {
	depts := make([]model.Department, 0, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.Get("name").String())
		if name == "" {
			continue
		}
		d := model.Department{
			SerialNo:        strings.TrimSpace(r.Get("serial").String()),
			Name:            name,
			TenderCountText: strings.TrimSpace(r.Get("count").String()),
		}
		if n, err := strconv.Atoi(d.TenderCountText); err == nil {
			d.TenderCount = &n
		}
		if url := strings.TrimSpace(r.Get("url").String()); url != "" {
			d.DirectURL = &url
		}
		depts = append(depts, d)
	}
	return depts
}

func findFirstTable(n *html.Node) *html.Node { return findFirst(n, "table") }

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
