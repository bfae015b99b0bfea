// Package spa renders the single-page application shell with a per-request
// CSP nonce on every script element.
package spa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// fallbackShell is served when no built index.html is available, e.g. in dev.
const fallbackShell = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>BoxOffice</title><base href="/"></head>
<body><app-root></app-root><script src="main.js" type="module"></script></body>
</html>`

// Preload is a JSON document injected into <head> as
// <script type="application/json" id=ID data-param=Param>.
type Preload struct {
	ID    string
	Param string
	Data  any
}

// Shell holds the raw index page. It is re-parsed per render so concurrent
// requests never share a mutable tree.
type Shell struct {
	raw []byte
}

// New validates raw as HTML and wraps it.
func New(raw []byte) (*Shell, error) {
	if _, err := html.Parse(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse spa shell: %w", err)
	}
	return &Shell{raw: append([]byte(nil), raw...)}, nil
}

// Load reads the shell from disk.
func Load(path string) (*Shell, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spa shell %s: %w", path, err)
	}
	return New(raw)
}

// Fallback returns the built-in minimal shell.
func Fallback() *Shell {
	return &Shell{raw: []byte(fallbackShell)}
}

// Render writes the shell with nonce set on every <script> and the preloads
// appended to <head>.
func (s *Shell) Render(w io.Writer, nonce string, preloads ...Preload) error {
	doc, err := html.Parse(bytes.NewReader(s.raw))
	if err != nil {
		return fmt.Errorf("parse spa shell: %w", err)
	}

	var head *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				setAttr(n, "nonce", nonce)
			case atom.Head:
				if head == nil {
					head = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if head != nil {
		for _, p := range preloads {
			node, err := preloadNode(p, nonce)
			if err != nil {
				return err
			}
			head.AppendChild(node)
		}
	}
	return html.Render(w, doc)
}

func preloadNode(p Preload, nonce string) (*html.Node, error) {
	// json.Marshal escapes <, > and & so the payload cannot close the tag.
	payload, err := json.Marshal(p.Data)
	if err != nil {
		return nil, fmt.Errorf("encode preload %s: %w", p.ID, err)
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "application/json"},
			{Key: "id", Val: p.ID},
			{Key: "nonce", Val: nonce},
		},
	}
	if p.Param != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "data-param", Val: p.Param})
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: string(payload)})
	return n, nil
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
