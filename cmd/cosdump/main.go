// Command cosdump walks a PDF's object table and prints each object's
// id, kind and dictionary keys, hex-dumping stream payloads on request.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/midbel/hexdump"

	"github.com/markpdf/cos/document"
	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/xref"
)

func main() {
	var (
		password = flag.String("password", "", "document password")
		streams  = flag.Bool("streams", false, "hex-dump decoded stream payloads")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cosdump [-streams] [-password pwd] file.pdf")
		os.Exit(2)
	}
	if err := run(flag.Arg(0), *password, *streams); err != nil {
		fmt.Fprintln(os.Stderr, "cosdump:", err)
		os.Exit(1)
	}
}

func run(path, password string, streams bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := document.Open(buf, document.Options{Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("%s: PDF %s, %d page(s)\n", path, doc.Version(), doc.PageCount())

	ix, ok := doc.Index().(*xref.FileIndex)
	if !ok {
		return fmt.Errorf("unexpected index type")
	}
	for _, num := range ix.Objects() {
		obj, found := doc.Object(num)
		if !found {
			fmt.Printf("%6d: <unresolvable>\n", num)
			continue
		}
		fmt.Printf("%6d: %s%s\n", num, obj.Type(), describe(obj))
		if streams {
			if s, isStream := obj.(*object.Stream); isStream {
				dumpStream(s)
			}
		}
	}
	return nil
}

func describe(obj object.Object) string {
	switch v := obj.(type) {
	case *object.Dict:
		return " {" + strings.Join(v.Keys(), " ") + "}"
	case *object.Stream:
		return fmt.Sprintf(" {%s} (%d bytes)", strings.Join(v.Keys(), " "), len(v.Data))
	case object.Number:
		return " " + object.FormatNumber(v.V)
	case object.Name:
		return " /" + v.V
	}
	return ""
}

func dumpStream(s *object.Stream) {
	body, err := s.DecodedData()
	if err != nil {
		fmt.Printf("        decode failed: %v\n", err)
		body = s.Data
	}
	const window = 512
	if len(body) > window {
		body = body[:window]
	}
	fmt.Println(hexdump.Dump(body))
}
