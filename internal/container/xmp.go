package container

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AnyUserName/imgpress/internal/metadata"
)

// XMP namespaces.
const (
	nsRDF       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsPhotoshop = "http://ns.adobe.com/photoshop/1.0/"
	nsXMPRights = "http://ns.adobe.com/xap/1.0/rights/"
	nsCC        = "http://creativecommons.org/ns#"
	nsImgpress  = "https://github.com/AnyUserName/imgpress/ns/1.0/"
)

const (
	xpacketBegin = "<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n"
	xpacketEnd   = "<?xpacket end=\"w\"?>"
)

// BuildXMP renders the extended block as an XMP packet. An empty block
// yields nil.
func BuildXMP(e metadata.Extended) ([]byte, error) {
	if e.IsZero() {
		return nil, nil
	}

	var b bytes.Buffer
	b.WriteString(xpacketBegin)
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="` + nsRDF + `">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about=""` +
		"\n    xmlns:dc=\"" + nsDC + "\"" +
		"\n    xmlns:photoshop=\"" + nsPhotoshop + "\"" +
		"\n    xmlns:xmpRights=\"" + nsXMPRights + "\"" +
		"\n    xmlns:cc=\"" + nsCC + "\"" +
		"\n    xmlns:imgpress=\"" + nsImgpress + "\">\n")

	if err := simple(&b, "photoshop:Credit", e.Credit); err != nil {
		return nil, err
	}
	if err := simple(&b, "cc:license", e.License); err != nil {
		return nil, err
	}
	if err := langAlt(&b, "dc:rights", e.RightsStatement); err != nil {
		return nil, err
	}
	if err := langAlt(&b, "xmpRights:UsageTerms", e.UsageTerms); err != nil {
		return nil, err
	}
	if len(e.Keywords) > 0 {
		b.WriteString("   <dc:subject>\n    <rdf:Bag>\n")
		for _, k := range e.Keywords {
			b.WriteString("     <rdf:li>")
			if err := xml.EscapeText(&b, []byte(k)); err != nil {
				return nil, err
			}
			b.WriteString("</rdf:li>\n")
		}
		b.WriteString("    </rdf:Bag>\n   </dc:subject>\n")
	}
	for _, kv := range (metadata.Extended{Custom: e.Custom}).Pairs() {
		if err := simple(&b, "imgpress:"+kv[0], kv[1]); err != nil {
			return nil, err
		}
	}

	b.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	b.WriteString(xpacketEnd)
	return b.Bytes(), nil
}

func simple(b *bytes.Buffer, name, v string) error {
	if v == "" {
		return nil
	}
	fmt.Fprintf(b, "   <%s>", name)
	if err := xml.EscapeText(b, []byte(v)); err != nil {
		return err
	}
	fmt.Fprintf(b, "</%s>\n", name)
	return nil
}

func langAlt(b *bytes.Buffer, name, v string) error {
	if v == "" {
		return nil
	}
	fmt.Fprintf(b, "   <%s>\n    <rdf:Alt>\n     <rdf:li xml:lang=\"x-default\">", name)
	if err := xml.EscapeText(b, []byte(v)); err != nil {
		return err
	}
	fmt.Fprintf(b, "</rdf:li>\n    </rdf:Alt>\n   </%s>\n", name)
	return nil
}

// ParseXMP reads the extended block back out of an XMP packet. Properties
// outside the known namespaces are ignored.
func ParseXMP(data []byte) (metadata.Extended, error) {
	var (
		e     metadata.Extended
		stack []xml.Name
		text  strings.Builder
	)
	props := make(map[xml.Name][]string)
	var order []xml.Name

	record := func(name xml.Name, v string) {
		if _, seen := props[name]; !seen {
			order = append(order, name)
		}
		props[name] = append(props[name], v)
	}
	// property returns the nearest enclosing non-RDF element.
	property := func() (xml.Name, bool) {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].Space != nsRDF {
				return stack[i], true
			}
		}
		return xml.Name{}, false
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return metadata.Extended{}, fmt.Errorf("container: parse xmp: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text.Reset()
			stack = append(stack, t.Name)
			for _, a := range t.Attr {
				if a.Name.Space == nsRDF && a.Name.Local == "resource" && t.Name.Space != nsRDF {
					record(t.Name, a.Value)
				}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			v := strings.TrimSpace(text.String())
			text.Reset()
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			if v == "" {
				continue
			}
			switch {
			case t.Name.Space == nsRDF && t.Name.Local == "li":
				if p, ok := property(); ok {
					record(p, v)
				}
			case t.Name.Space != nsRDF && len(stack) > 0 && stack[len(stack)-1] == (xml.Name{Space: nsRDF, Local: "Description"}):
				record(t.Name, v)
			}
		}
	}

	first := func(space, local string) string {
		if vs := props[xml.Name{Space: space, Local: local}]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	e.Credit = first(nsPhotoshop, "Credit")
	e.License = first(nsCC, "license")
	e.RightsStatement = first(nsDC, "rights")
	e.UsageTerms = first(nsXMPRights, "UsageTerms")
	e.Keywords = props[xml.Name{Space: nsDC, Local: "subject"}]
	for _, name := range order {
		if name.Space != nsImgpress {
			continue
		}
		if e.Custom == nil {
			e.Custom = make(map[string]string)
		}
		e.Custom[name.Local] = props[name][0]
	}
	return e, nil
}
