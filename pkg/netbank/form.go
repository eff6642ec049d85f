package netbank

import (
	"errors"
	"net/http"
	"net/url"
	"netbank/pkg/htmlutil"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var ErrFormNotFound = errors.New("form not found")

type formField struct {
	name     string
	value    string
	disabled bool
}

// Form is the set of fields a browser would submit for an html form, together with
// where and how it would submit them.
type Form struct {
	Method string
	Action *url.URL
	fields []formField
}

// Set adds or overwrites a field. A field that was disabled in the markup is enabled
// by setting it.
func (f *Form) Set(name, value string) {
	out := f.fields[:0]
	found := false
	for _, field := range f.fields {
		if field.name != name {
			out = append(out, field)
			continue
		}
		if found {
			continue
		}
		found = true
		out = append(out, formField{name: name, value: value})
	}
	f.fields = out
	if !found {
		f.fields = append(f.fields, formField{name: name, value: value})
	}
}

// InjectHiddenField adds a field the markup does not contain, the way the portal's
// client-side script would before a postback.
func (f *Form) InjectHiddenField(name, value string) {
	f.Set(name, value)
}

func (f *Form) Get(name string) (string, bool) {
	for _, field := range f.fields {
		if field.name == name {
			return field.value, true
		}
	}
	return "", false
}

func (f *Form) Disabled(name string) bool {
	for _, field := range f.fields {
		if field.name == name {
			return field.disabled
		}
	}
	return false
}

// Enable re-enables every field the markup marked as disabled, disabled fields
// are otherwise left out of the submission.
func (f *Form) Enable() {
	for i := range f.fields {
		f.fields[i].disabled = false
	}
}

// Values returns the fields that would be submitted.
func (f *Form) Values() url.Values {
	values := url.Values{}
	for _, field := range f.fields {
		if field.disabled {
			continue
		}
		values.Add(field.name, field.value)
	}
	return values
}

var buttonSelector = strings.Join([]string{
	"button",
	"input[type=submit]",
	"input[type=button]",
	"input[type=image]",
}, ", ")

func buttonMatches(button *goquery.Selection, label string) bool {
	if goquery.NodeName(button) == "button" && htmlutil.CleanText(button.Text()) == label {
		return true
	}
	for _, attr := range []string{"value", "id", "name", "alt"} {
		if strings.TrimSpace(button.AttrOr(attr, "")) == label {
			return true
		}
	}
	return false
}

// formByButton finds the form that the button labeled `label` submits, the button
// itself is submitted along with the form.
func formByButton(p page, label string) (Form, error) {
	var form Form
	err := ErrFormNotFound
	p.Doc.Find(buttonSelector).EachWithBreak(func(_ int, button *goquery.Selection) bool {
		if !buttonMatches(button, label) {
			return true
		}
		container := button.Closest("form")
		if container.Length() == 0 {
			return true
		}
		form = newForm(p.Url, container, button)
		err = nil
		return false
	})
	return form, err
}

// formBySelector finds the form matched by `selector`, or the form enclosing or
// inside the element it matches.
func formBySelector(p page, selector string) (Form, error) {
	sel := p.Doc.Find(selector).First()
	if sel.Length() == 0 {
		return Form{}, ErrFormNotFound
	}

	container := sel
	if goquery.NodeName(sel) != "form" {
		container = sel.Closest("form")
		if container.Length() == 0 {
			container = sel.Find("form").First()
		}
	}
	if container.Length() == 0 {
		return Form{}, ErrFormNotFound
	}
	return newForm(p.Url, container, nil), nil
}

func newForm(pageUrl *url.URL, container *goquery.Selection, clicked *goquery.Selection) Form {
	method := strings.ToUpper(strings.TrimSpace(container.AttrOr("method", "")))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	action := pageUrl
	if raw := strings.TrimSpace(container.AttrOr("action", "")); raw != "" {
		parsed, err := url.Parse(raw)
		if err == nil {
			action = pageUrl.ResolveReference(parsed)
		}
	}

	var clickedNode *html.Node
	if clicked != nil && clicked.Length() > 0 {
		clickedNode = clicked.Get(0)
	}

	form := Form{Method: method, Action: action}
	container.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		_, disabled := s.Attr("disabled")
		if s.Closest("fieldset[disabled]").Length() > 0 {
			disabled = true
		}
		add := func(name, value string) {
			form.fields = append(form.fields, formField{name: name, value: value, disabled: disabled})
		}

		switch goquery.NodeName(s) {
		case "textarea":
			add(name, s.Text())
		case "select":
			selected := s.Find("option[selected]")
			_, multiple := s.Attr("multiple")
			if selected.Length() == 0 && !multiple {
				selected = s.Find("option").First()
			}
			selected.Each(func(_ int, option *goquery.Selection) {
				value, ok := option.Attr("value")
				if !ok {
					value = htmlutil.CleanText(option.Text())
				}
				add(name, value)
			})
		case "button":
			if s.Get(0) != clickedNode {
				return
			}
			kind := strings.ToLower(s.AttrOr("type", "submit"))
			if kind == "submit" {
				add(name, s.AttrOr("value", ""))
			}
		case "input":
			kind := strings.ToLower(s.AttrOr("type", "text"))
			switch kind {
			case "submit", "button", "reset":
				if s.Get(0) == clickedNode && kind == "submit" {
					add(name, s.AttrOr("value", ""))
				}
			case "image":
				if s.Get(0) == clickedNode {
					add(name+".x", "0")
					add(name+".y", "0")
				}
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); checked {
					add(name, s.AttrOr("value", "on"))
				}
			case "file":
			default:
				add(name, s.AttrOr("value", ""))
			}
		}
	})

	return form
}
