package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf"
)

// options are the parsed command line flags
type options struct {
	dataPath   string
	outPath    string
	xmlPath    string
	reportPath string
	profile    string
	producer   string
	format     string
	pdfPath    string
}

// AssemblyResult is the JSON output of one run
type AssemblyResult struct {
	Input      string             `json:"input"`
	Output     string             `json:"output"`
	Profile    string             `json:"profile"`
	Path       string             `json:"path"`
	Validation facturx.Validation `json:"validation"`
	Report     []string           `json:"report"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return 2
	}

	result, err := assemble(opts, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := outputResult(stdout, opts.format, result); err != nil {
		fmt.Fprintf(stderr, "Error outputting results: %v\n", err)
		return 1
	}
	if !result.Validation.XMLValid {
		return 3
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("facturx_assemble", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printHelp(stderr) }

	opts := &options{}
	fs.StringVar(&opts.dataPath, "data", "", "Invoice record JSON file (- for stdin)")
	fs.StringVar(&opts.outPath, "out", "", "Output PDF path (default: <input>-facturx.pdf)")
	fs.StringVar(&opts.xmlPath, "xml", "", "Also write the CII XML to this path")
	fs.StringVar(&opts.reportPath, "report", "", "Also write the validation report PDF to this path")
	fs.StringVar(&opts.profile, "profile", string(facturx.DefaultProfile), "Factur-X profile")
	fs.StringVar(&opts.producer, "producer", facturx.DefaultProducer, "Producer recorded in the XMP metadata")
	fs.StringVar(&opts.format, "format", "text", "Output format: text, json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("PDF file path required")
	}
	if opts.dataPath == "" {
		return nil, errors.New("-data is required")
	}
	if opts.format != "text" && opts.format != "json" {
		return nil, fmt.Errorf("unsupported output format: %s", opts.format)
	}

	opts.pdfPath = fs.Arg(0)
	if opts.outPath == "" {
		opts.outPath = strings.TrimSuffix(opts.pdfPath, filepath.Ext(opts.pdfPath)) + "-facturx.pdf"
	}
	return opts, nil
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Factur-X Assemble - Embed a CII invoice into an existing PDF")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Generates the factur-x.xml for an invoice record, attaches it to the PDF")
	fmt.Fprintln(w, "with PDF/A-3 metadata and prints the validation report.")
	fmt.Fprintln(w)
	printUsage(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "  -data       Invoice record JSON file, - reads stdin (required)")
	fmt.Fprintln(w, "  -out        Output PDF path (default: <input>-facturx.pdf)")
	fmt.Fprintln(w, "  -xml        Also write the generated XML")
	fmt.Fprintln(w, "  -report     Also write the validation report PDF")
	fmt.Fprintln(w, "  -profile    MINIMUM, BASIC_WL (default), BASIC, EN16931 or EXTENDED")
	fmt.Fprintln(w, "  -producer   Producer recorded in the XMP metadata")
	fmt.Fprintln(w, "  -format     Output format: text (default), json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXIT CODES:")
	fmt.Fprintln(w, "  0  assembled, record valid")
	fmt.Fprintln(w, "  1  assembly failed")
	fmt.Fprintln(w, "  2  usage error")
	fmt.Fprintln(w, "  3  assembled, but the record has validation errors")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  facturx_assemble -data invoice.json invoice.pdf")
	fmt.Fprintln(w, "  facturx_assemble -data - -profile BASIC -format json invoice.pdf < invoice.json")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  facturx_assemble [OPTIONS] -data <record.json> <pdf_file>")
}

func readRecord(path string) (facturx.InvoiceRecord, error) {
	var rec facturx.InvoiceRecord

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read invoice record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("invalid invoice record: %w", err)
	}
	return rec, nil
}

// assemble runs the local conversion pipeline on files instead of uploads
func assemble(opts *options, now time.Time) (*AssemblyResult, error) {
	original, err := os.ReadFile(opts.pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	rec, err := readRecord(opts.dataPath)
	if err != nil {
		return nil, err
	}
	// unknown spellings fall back to the default profile
	profile := facturx.ParseProfile(opts.profile)

	xml, _, err := facturx.GenerateCII(rec, profile)
	if err != nil {
		return nil, err
	}
	findings := facturx.Check(rec)

	builder := pdf.NewBuilder(opts.producer)
	embedded, err := builder.Embed(original, xml, rec, profile, now)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble Factur-X PDF: %w", err)
	}
	validation := pdf.Validate(findings, true, embedded.Inspection)

	report := facturx.BuildReport(facturx.ReportInput{
		Record:      rec,
		Profile:     profile,
		Validation:  validation,
		Path:        convert.PathLocal,
		GeneratedAt: now,
	})

	outputs := []struct {
		path string
		data func() ([]byte, error)
	}{
		{opts.outPath, func() ([]byte, error) { return embedded.PDF, nil }},
		{opts.xmlPath, func() ([]byte, error) { return xml, nil }},
		{opts.reportPath, func() ([]byte, error) { return pdf.RenderReport(report, builder.Producer(), now) }},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		data, err := o.data()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(o.path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", o.path, err)
		}
	}

	result := &AssemblyResult{
		Input:      opts.pdfPath,
		Output:     opts.outPath,
		Profile:    profile.String(),
		Path:       convert.PathLocal,
		Validation: validation,
	}
	for _, line := range report.Lines {
		if line.Status == "" {
			result.Report = append(result.Report, line.Text)
			continue
		}
		result.Report = append(result.Report, fmt.Sprintf("[%s] %s", line.Status, line.Text))
	}
	return result, nil
}

func outputResult(w io.Writer, format string, result *AssemblyResult) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if result.Validation.FacturXValid {
		fmt.Fprintf(w, "✅ Wrote %s (%s)\n", result.Output, result.Profile)
	} else {
		fmt.Fprintf(w, "⚠️  Wrote %s (%s) but the readback is not a complete Factur-X document\n", result.Output, result.Profile)
	}
	fmt.Fprintln(w)
	for _, line := range result.Report {
		fmt.Fprintln(w, line)
	}
	return nil
}
