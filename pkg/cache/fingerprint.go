package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"

	"github.com/kiln/kiln/pkg/types"
)

// Fingerprint derives the cache key for an item: a sha256 over the source
// file content, the importer and processor names, and both argument maps
// with sorted keys. Content hashing rather than timestamps, so clock skew
// never produces a false skip.
func Fingerprint(item types.ContentItem) (string, error) {
	h := sha256.New()

	file, err := os.Open(item.SourcePath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, file); err != nil {
		file.Close()
		return "", err
	}
	file.Close()

	writeField(h, item.Importer)
	writeArgs(h, item.ImporterArgs)
	writeField(h, item.Processor)
	writeArgs(h, item.ProcessorArgs)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField writes a length-delimited field so adjacent values can never
// collide by concatenation.
func writeField(h io.Writer, value string) {
	var length [8]byte
	n := len(value)
	for i := 0; i < 8; i++ {
		length[i] = byte(n >> (8 * i))
	}
	h.Write(length[:])
	h.Write([]byte(value))
}

func writeArgs(h io.Writer, args map[string]string) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		writeField(h, k)
		writeField(h, args[k])
	}
	writeField(h, "") // terminator separating maps
}
