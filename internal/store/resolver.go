package store

import (
	"path/filepath"
	"strings"

	"sqlbridge/internal/platform/sqlite"
	"sqlbridge/internal/shared"
)

// memoryTarget is the target segment naming an ephemeral in-memory database.
const memoryTarget = "memory:"

// Source is the resolved form of a connection string: a canonical alias plus
// everything the registry needs to open the handle.
type Source struct {
	// Alias is the canonical registry key: the absolute file path, or the raw
	// connection string for in-memory databases (each distinct raw string is
	// its own private database).
	Alias string
	// Path is the filesystem target, or sqlite.MemoryPath for in-memory.
	Path string
	// InMemory marks an ephemeral database.
	InMemory bool
	// Credential is the embedded encryption credential; empty means none.
	Credential string
}

// Resolve normalizes a raw connection string into a Source.
//
// The accepted grammar is "sqlite:<credential>:<target>", where the
// credential segment may be empty. The two-segment form "sqlite:<target>" is
// also accepted and means no credential; "sqlite::memory:" therefore parses
// as an empty credential with the in-memory target. Relative file targets
// resolve against dataDir. Pure transformation: nothing is opened or created
// here.
func Resolve(raw, dataDir string) (Source, error) {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Source{}, shared.Wrapf(shared.ErrInvalidConnectionString, "%q has no scheme", raw)
	}
	if scheme != "sqlite" {
		return Source{}, shared.Wrapf(shared.ErrInvalidConnectionString, "unsupported scheme %q", scheme)
	}

	credential := ""
	target := rest
	// A second separator splits credential from target, except when the rest
	// is exactly the bare in-memory marker ":memory:"/"memory:".
	if rest != ":"+memoryTarget && rest != memoryTarget {
		if cred, tgt, found := strings.Cut(rest, ":"); found && tgt != "" {
			credential = cred
			target = tgt
		}
	}
	target = strings.TrimPrefix(target, ":")

	if target == "" {
		return Source{}, shared.Wrapf(shared.ErrInvalidConnectionString, "%q has no target", raw)
	}

	if target == memoryTarget || target == "memory" {
		return Source{
			Alias:      raw,
			Path:       sqlite.MemoryPath,
			InMemory:   true,
			Credential: credential,
		}, nil
	}

	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	path = filepath.Clean(path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, shared.MarkKind(err, shared.KindInvalidConnectionString)
	}

	return Source{
		Alias:      abs,
		Path:       abs,
		Credential: credential,
	}, nil
}
