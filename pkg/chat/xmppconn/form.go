// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/form"
)

type formField struct {
	Var   string
	Value string
}

func boolField(name string, v bool) formField {
	if v {
		return formField{Var: name, Value: "1"}
	}
	return formField{Var: name, Value: "0"}
}

// submitForm renders a data form submission with one value per field.
func submitForm(fields []formField) xml.TokenReader {
	children := make([]xml.TokenReader, 0, len(fields))
	for _, f := range fields {
		children = append(children, xmlstream.Wrap(
			xmlstream.Wrap(
				xmlstream.Token(xml.CharData(f.Value)),
				xml.StartElement{Name: xml.Name{Local: "value"}},
			),
			xml.StartElement{
				Name: xml.Name{Local: "field"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "var"}, Value: f.Var}},
			},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(children...),
		xml.StartElement{
			Name: xml.Name{Space: form.NS, Local: "x"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: "submit"}},
		},
	)
}
