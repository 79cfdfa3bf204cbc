package pdf

import (
	"fmt"
	"strings"
)

// Page is a leaf of the page tree
type Page struct {
	Ref      Ref
	Dict     Dict
	MediaBox [4]float64
}

// Field is a terminal interactive form field
type Field struct {
	Ref       Ref
	Dict      Dict
	FullName  string
	Type      Name // inherited /FT
	WidgetRef Ref  // equal to Ref for merged field/widget dictionaries
	Widget    Dict
}

// Signed reports whether the field already carries a value
func (f *Field) Signed() bool {
	return f.Dict["V"] != nil
}

var defaultMediaBox = [4]float64{0, 0, 612, 792}

// Pages returns the page tree leaves in document order
func (d *Document) Pages() ([]Page, error) {
	_, cat, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, ok := cat["Pages"].(Ref)
	if !ok {
		return nil, fmt.Errorf("pdf: catalog has no /Pages reference")
	}

	var pages []Page
	visited := map[int]bool{}
	var walk func(ref Ref, box [4]float64, depth int) error
	walk = func(ref Ref, box [4]float64, depth int) error {
		if depth > 64 || visited[ref.Num] {
			return fmt.Errorf("pdf: page tree cycle at object %d", ref.Num)
		}
		visited[ref.Num] = true

		node, err := d.ResolveDict(ref)
		if err != nil {
			return err
		}
		if mb, ok := d.rect(node["MediaBox"]); ok {
			box = mb
		}

		typ, _ := node.Name("Type")
		kids, hasKids := node["Kids"]
		if typ == "Pages" || (typ == "" && hasKids) {
			arr, err := d.ResolveArray(kids)
			if err != nil {
				return err
			}
			for _, k := range arr {
				kr, ok := k.(Ref)
				if !ok {
					return fmt.Errorf("pdf: page tree kid is not a reference")
				}
				if err := walk(kr, box, depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		pages = append(pages, Page{Ref: ref, Dict: node, MediaBox: box})
		return nil
	}

	if err := walk(root, defaultMediaBox, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

func (d *Document) rect(o Object) ([4]float64, bool) {
	var r [4]float64
	arr, err := d.ResolveArray(o)
	if err != nil || len(arr) != 4 {
		return r, false
	}
	for i, v := range arr {
		rv, err := d.Resolve(v)
		if err != nil {
			return r, false
		}
		f, ok := toFloat(rv)
		if !ok {
			return r, false
		}
		r[i] = f
	}
	// Normalize so that [0],[1] is the lower-left corner.
	if r[0] > r[2] {
		r[0], r[2] = r[2], r[0]
	}
	if r[1] > r[3] {
		r[1], r[3] = r[3], r[1]
	}
	return r, true
}

// AcroForm returns the interactive form dictionary, or nil when absent
func (d *Document) AcroForm() (Dict, error) {
	_, cat, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	if cat["AcroForm"] == nil {
		return nil, nil
	}
	return d.ResolveDict(cat["AcroForm"])
}

// Fields returns the terminal form fields reachable from /AcroForm /Fields
func (d *Document) Fields() ([]Field, error) {
	form, err := d.AcroForm()
	if err != nil || form == nil {
		return nil, err
	}
	roots, err := d.ResolveArray(form["Fields"])
	if err != nil {
		return nil, err
	}

	var fields []Field
	visited := map[int]bool{}
	var walk func(ref Ref, parentName string, parentType Name, depth int) error
	walk = func(ref Ref, parentName string, parentType Name, depth int) error {
		if depth > 32 || visited[ref.Num] {
			return nil
		}
		visited[ref.Num] = true

		node, err := d.ResolveDict(ref)
		if err != nil {
			return err
		}

		name := parentName
		if t, ok := node["T"].(String); ok {
			if name != "" {
				name += "."
			}
			name += string(t)
		}
		ft := parentType
		if t, ok := node.Name("FT"); ok {
			ft = t
		}

		kids, err := d.ResolveArray(node["Kids"])
		if err != nil {
			return err
		}

		// Kids without /T are widgets of this field, not child fields.
		var childFields []Ref
		var widgets []Ref
		for _, k := range kids {
			kr, ok := k.(Ref)
			if !ok {
				continue
			}
			kd, err := d.ResolveDict(kr)
			if err != nil {
				return err
			}
			if _, named := kd["T"]; named {
				childFields = append(childFields, kr)
			} else {
				widgets = append(widgets, kr)
			}
		}

		if len(childFields) == 0 {
			f := Field{Ref: ref, Dict: node, FullName: name, Type: ft, WidgetRef: ref, Widget: node}
			if len(widgets) > 0 {
				wd, err := d.ResolveDict(widgets[0])
				if err != nil {
					return err
				}
				f.WidgetRef = widgets[0]
				f.Widget = wd
			}
			fields = append(fields, f)
			return nil
		}

		for _, c := range childFields {
			if err := walk(c, name, ft, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		ref, ok := r.(Ref)
		if !ok {
			continue
		}
		if err := walk(ref, "", "", 0); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// FindField looks a field up by full name or by its last name component
func (d *Document) FindField(name string) (*Field, error) {
	fields, err := d.Fields()
	if err != nil {
		return nil, err
	}
	for i := range fields {
		f := &fields[i]
		if f.FullName == name {
			return f, nil
		}
	}
	for i := range fields {
		f := &fields[i]
		if idx := strings.LastIndex(f.FullName, "."); idx >= 0 && f.FullName[idx+1:] == name {
			return f, nil
		}
	}
	return nil, nil
}

// pageIndexOf finds the page whose /Annots holds widget, or whose ref is
// the widget's /P entry.
func (d *Document) pageIndexOf(pages []Page, widgetRef Ref, widget Dict) int {
	if p, ok := widget["P"].(Ref); ok {
		for i, pg := range pages {
			if pg.Ref.Num == p.Num {
				return i
			}
		}
	}
	for i, pg := range pages {
		annots, err := d.ResolveArray(pg.Dict["Annots"])
		if err != nil {
			continue
		}
		for _, a := range annots {
			if ar, ok := a.(Ref); ok && ar.Num == widgetRef.Num {
				return i
			}
		}
	}
	return -1
}

// signatureWidgetsOn counts signature widgets already placed on page
func (d *Document) signatureWidgetsOn(page Page) int {
	annots, err := d.ResolveArray(page.Dict["Annots"])
	if err != nil {
		return 0
	}
	n := 0
	for _, a := range annots {
		ad, err := d.ResolveDict(a)
		if err != nil {
			continue
		}
		ft, _ := ad.Name("FT")
		if ft == "" {
			if parent, err := d.ResolveDict(ad["Parent"]); err == nil && parent != nil {
				ft, _ = parent.Name("FT")
			}
		}
		if ft == "Sig" {
			n++
		}
	}
	return n
}
