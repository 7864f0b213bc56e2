package pdf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// PdftkFiller shells out to the pdftk binary.
type PdftkFiller struct {
	bin string
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPdftkFiller returns a filler using the pdftk binary at bin, or "pdftk"
// from PATH when bin is empty.
func NewPdftkFiller(bin string) *PdftkFiller {
	if bin == "" {
		bin = "pdftk"
	}
	return &PdftkFiller{bin: bin, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, eris.Wrapf(err, "%s: %s", name, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Fields lists the form field names of the PDF at path.
func (p *PdftkFiller) Fields(ctx context.Context, path string) ([]string, error) {
	out, err := p.run(ctx, p.bin, path, "dump_data_fields_utf8")
	if err != nil {
		return nil, eris.Wrapf(err, "pdftk: dump fields of %s", path)
	}
	return parseFieldDump(out), nil
}

// Fill writes values into the form fields of in and saves the result to out.
func (p *PdftkFiller) Fill(ctx context.Context, in, out string, values map[string]string) error {
	doc, err := xfdf(values)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "records-*.xfdf")
	if err != nil {
		return eris.Wrap(err, "pdftk: create xfdf")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "pdftk: write xfdf")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "pdftk: close xfdf")
	}

	if _, err := p.run(ctx, p.bin, in, "fill_form", tmp.Name(), "output", out); err != nil {
		return eris.Wrapf(err, "pdftk: fill %s", in)
	}
	return nil
}

func parseFieldDump(out []byte) []string {
	var fields []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		name, ok := strings.CutPrefix(sc.Text(), "FieldName: ")
		if ok && name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}

type xfdfDoc struct {
	XMLName xml.Name    `xml:"xfdf"`
	NS      string      `xml:"xmlns,attr"`
	Fields  []xfdfField `xml:"fields>field"`
}

type xfdfField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func xfdf(values map[string]string) ([]byte, error) {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	doc := xfdfDoc{NS: "http://ns.adobe.com/xfdf/"}
	for _, n := range names {
		doc.Fields = append(doc.Fields, xfdfField{Name: n, Value: values[n]})
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "pdftk: encode xfdf")
	}
	return append([]byte(xml.Header), body...), nil
}
