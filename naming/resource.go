// Package naming defines the value types this repo uses to identify the
// things data flows between: Resource and LocalizedResource. Both are
// plain, comparable, hashable value types — following go.ref's habit of
// keeping resolvable "names" as simple strings/structs rather than class
// hierarchies (see runtime/internal/naming/namespace.New for the sibling
// convention of rooted-name parsing this package's Parse follows).
package naming

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trace2e/t2ecore/t2eerrors"
)

// Kind discriminates the tagged variants of Resource.
type Kind uint8

const (
	// KindNone is the zero-value sentinel, used only as a default.
	KindNone Kind = iota
	KindFile
	KindStream
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStream:
		return "stream"
	case KindProcess:
		return "process"
	default:
		return "none"
	}
}

// Resource is a tagged-variant value type: exactly one of the typed
// payloads below is meaningful, selected by Kind. Resource is comparable
// (usable as a map key) and intentionally carries no pointers so two
// Resources describing the same thing are always ==.
type Resource struct {
	Kind Kind

	// File
	Path string

	// Stream
	LocalSocket string
	PeerSocket  string

	// Process
	PID       int64
	StartTime int64 // unix nanoseconds; disambiguates across pid reuse
	ExePath   string
}

// None is the zero-value sentinel Resource.
var None = Resource{Kind: KindNone}

// NewFile builds a File resource.
func NewFile(path string) Resource {
	return Resource{Kind: KindFile, Path: path}
}

// NewStream builds a Stream resource from its local and peer socket strings.
func NewStream(localSocket, peerSocket string) Resource {
	return Resource{Kind: KindStream, LocalSocket: localSocket, PeerSocket: peerSocket}
}

// NewProcess builds a Process resource.
func NewProcess(pid int64, startTime time.Time, exePath string) Resource {
	return Resource{Kind: KindProcess, PID: pid, StartTime: startTime.UnixNano(), ExePath: exePath}
}

// IsStream reports whether r is a Stream resource.
func (r Resource) IsStream() bool { return r.Kind == KindStream }

// IsNone reports whether r is the None sentinel.
func (r Resource) IsNone() bool { return r.Kind == KindNone }

// String renders r in the textual form defined by spec §6:
// file:///path ; stream://<local>::::<peer> ; process://<pid>::<starttime>::<exe> ; None
func (r Resource) String() string {
	switch r.Kind {
	case KindFile:
		return "file://" + r.Path
	case KindStream:
		return fmt.Sprintf("stream://%s::::%s", r.LocalSocket, r.PeerSocket)
	case KindProcess:
		return fmt.Sprintf("process://%d::%d::%s", r.PID, r.StartTime, r.ExePath)
	default:
		return "None"
	}
}

// Parse parses the textual form of a Resource produced by String.
func Parse(s string) (Resource, error) {
	if s == "None" || s == "" {
		return None, nil
	}
	switch {
	case strings.HasPrefix(s, "file://"):
		path := strings.TrimPrefix(s, "file://")
		if path == "" {
			return None, t2eerrors.InvalidResourceFormat("empty file path in %q", s)
		}
		return NewFile(path), nil
	case strings.HasPrefix(s, "stream://"):
		body := strings.TrimPrefix(s, "stream://")
		parts := strings.SplitN(body, "::::", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return None, t2eerrors.InvalidResourceFormat("malformed stream resource %q", s)
		}
		if err := validateSocket(parts[0]); err != nil {
			return None, err
		}
		if err := validateSocket(parts[1]); err != nil {
			return None, err
		}
		return NewStream(parts[0], parts[1]), nil
	case strings.HasPrefix(s, "process://"):
		body := strings.TrimPrefix(s, "process://")
		parts := strings.SplitN(body, "::", 3)
		if len(parts) != 3 {
			return None, t2eerrors.InvalidResourceFormat("malformed process resource %q", s)
		}
		pid, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return None, t2eerrors.InvalidResourceFormat("malformed process pid in %q: %v", s, err)
		}
		start, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return None, t2eerrors.InvalidResourceFormat("malformed process start_time in %q: %v", s, err)
		}
		return Resource{Kind: KindProcess, PID: pid, StartTime: start, ExePath: parts[2]}, nil
	default:
		return None, t2eerrors.InvalidResourceFormat("unrecognized resource form %q", s)
	}
}

// validateSocket checks that s parses as host:port with an IPv4 or IPv6
// address host, per spec §6 ("Socket strings MUST parse to IPv4/IPv6
// address+port; malformed inputs return an argument error").
func validateSocket(s string) error {
	host, port, err := splitHostPort(s)
	if err != nil {
		return t2eerrors.InvalidResourceFormat("malformed socket %q: %v", s, err)
	}
	if !isIP(host) {
		return t2eerrors.InvalidResourceFormat("socket %q does not have an IP address host", s)
	}
	if port == "" {
		return t2eerrors.InvalidResourceFormat("socket %q is missing a port", s)
	}
	return nil
}
