package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// Built-in transform names
const (
	ImporterBytes = "bytes"
	ImporterText  = "text"

	ProcessorPassthrough = "passthrough"
	ProcessorPrefix      = "prefix"
	ProcessorReverse     = "reverse"
)

func registerBuiltins(r *Registry) {
	r.RegisterImporter(ImporterBytes, importBytes)
	r.RegisterImporter(ImporterText, importText)

	r.RegisterProcessor(ProcessorPassthrough, processPassthrough)
	r.RegisterProcessor(ProcessorPrefix, processPrefix)
	r.RegisterProcessor(ProcessorReverse, processReverse)
}

// importBytes reads the source file verbatim
func importBytes(sourcePath string, _ map[string]string) ([]byte, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return data, nil
}

// importText reads a UTF-8 text source, normalizes line endings to \n and
// optionally strips comment lines when args["strip-comments"] is "true".
// The comment marker defaults to "#" and can be overridden with
// args["comment-marker"].
func importText(sourcePath string, args map[string]string) ([]byte, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer file.Close()

	stripComments := args["strip-comments"] == "true"
	marker := args["comment-marker"]
	if marker == "" {
		marker = "#"
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("source is not valid UTF-8: %s", sourcePath)
		}
		if stripComments && strings.HasPrefix(strings.TrimSpace(line), marker) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	return out.Bytes(), nil
}

// processPassthrough returns the input unchanged
func processPassthrough(input []byte, _ map[string]string) ([]byte, error) {
	return input, nil
}

// processPrefix prepends args["header"] to the input
func processPrefix(input []byte, args map[string]string) ([]byte, error) {
	header, ok := args["header"]
	if !ok {
		return nil, fmt.Errorf("prefix processor requires a header arg")
	}

	out := make([]byte, 0, len(header)+len(input))
	out = append(out, header...)
	out = append(out, input...)
	return out, nil
}

// processReverse reverses the input bytes
func processReverse(input []byte, _ map[string]string) ([]byte, error) {
	out := make([]byte, len(input))
	for i, b := range input {
		out[len(input)-1-i] = b
	}
	return out, nil
}
