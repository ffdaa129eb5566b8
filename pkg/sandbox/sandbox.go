// Package sandbox confines client-supplied paths to a single root directory.
//
// Paths on the wire are slash-separated and relative: to the session's
// working directory, or to the root when they start with "/". A path is
// first normalised lexically, which rejects any ".." that would climb above
// the root, and then re-checked after symbolic links are resolved so that a
// link inside the root cannot point outside it.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/marmos91/hsync/pkg/protocol"
)

// Sandbox resolves paths below an absolute, symlink-free root.
type Sandbox struct {
	root string
}

// Resolved is a path that has passed the sandbox checks.
type Resolved struct {
	// Rel is the slash-separated path relative to the root, "" for the root
	// itself. It reflects the real location after symlink resolution.
	Rel string
	// Abs is the absolute filesystem path to operate on.
	Abs string
}

// New creates a sandbox rooted at root. The root must exist and be a
// directory.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}
	return &Sandbox{root: real}, nil
}

// Root returns the absolute root directory.
func (s *Sandbox) Root() string {
	return s.root
}

// Join normalises requested against cwd without touching the filesystem.
// The result is slash-separated, relative to the root, and "" for the root.
func Join(cwd, requested string) (string, error) {
	return join(cwd, requested, protocol.PathEscape)
}

// JoinNav is Join for navigation: climbing above the root is a NotFound
// failure rather than an escape.
func JoinNav(cwd, requested string) (string, error) {
	return join(cwd, requested, protocol.NotFound)
}

func join(cwd, requested string, aboveRoot protocol.ErrorKind) (string, error) {
	if strings.ContainsRune(requested, 0) || strings.ContainsRune(requested, '\\') {
		return "", protocol.Errorf(protocol.MalformedRequest, "invalid character in path %q", requested)
	}

	var stack []string
	if !strings.HasPrefix(requested, "/") {
		for _, seg := range strings.Split(cwd, "/") {
			if seg != "" && seg != "." {
				stack = append(stack, seg)
			}
		}
	}

	for _, seg := range strings.Split(requested, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				if aboveRoot == protocol.PathEscape {
					return "", protocol.Errorf(protocol.PathEscape, "%q escapes the root", requested)
				}
				return "", protocol.Errorf(aboveRoot, "%q climbs above the root", requested)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	return strings.Join(stack, "/"), nil
}

// Resolve joins requested onto cwd and returns the real location, following
// symbolic links in every existing component. The target itself need not
// exist.
func (s *Sandbox) Resolve(cwd, requested string) (Resolved, error) {
	rel, err := Join(cwd, requested)
	if err != nil {
		return Resolved{}, err
	}
	return s.resolveRel(rel)
}

func (s *Sandbox) resolveRel(rel string) (Resolved, error) {
	lexical := filepath.Join(s.root, filepath.FromSlash(rel))

	// Walk up to the deepest component that exists, resolve it, then
	// re-append the missing tail.
	existing, tail := lexical, ""
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			abs := real
			if tail != "" {
				abs = filepath.Join(real, tail)
			}
			return s.within(abs, rel)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, protocol.FromFS(err, rel)
		}
		if tail != "" {
			if _, lerr := os.Lstat(existing); lerr == nil {
				return Resolved{}, protocol.Errorf(protocol.NotFound, "%q passes through a dangling link", rel)
			}
		}
		if existing == s.root {
			return Resolved{}, protocol.Errorf(protocol.NotFound, "root is missing")
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = filepath.Dir(existing)
	}
}

func (s *Sandbox) within(abs, requested string) (Resolved, error) {
	r, err := filepath.Rel(s.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return Resolved{}, protocol.Errorf(protocol.PathEscape, "%q resolves outside the root", requested)
	}
	if r == "." {
		r = ""
	}
	return Resolved{Rel: filepath.ToSlash(r), Abs: abs}, nil
}

// ResolveDir resolves requested and requires it to be an existing directory.
func (s *Sandbox) ResolveDir(cwd, requested string) (Resolved, error) {
	res, err := s.Resolve(cwd, requested)
	if err != nil {
		return Resolved{}, err
	}
	if err := s.requireDir(res); err != nil {
		return Resolved{}, err
	}
	return res, nil
}

// EnterDir resolves the target of a "down" command. It differs from
// ResolveDir only in how ".." above the root fails; see JoinNav.
func (s *Sandbox) EnterDir(cwd, requested string) (Resolved, error) {
	rel, err := JoinNav(cwd, requested)
	if err != nil {
		return Resolved{}, err
	}
	res, err := s.resolveRel(rel)
	if err != nil {
		return Resolved{}, err
	}
	if err := s.requireDir(res); err != nil {
		return Resolved{}, err
	}
	return res, nil
}

// CheckDir re-validates that rel, a previously resolved relative path, still
// names a directory inside the root.
func (s *Sandbox) CheckDir(rel string) (Resolved, error) {
	res, err := s.resolveRel(rel)
	if err != nil {
		return Resolved{}, err
	}
	if err := s.requireDir(res); err != nil {
		return Resolved{}, err
	}
	return res, nil
}

func (s *Sandbox) requireDir(res Resolved) error {
	info, err := os.Stat(res.Abs)
	if err != nil {
		return protocol.FromFS(err, res.Rel)
	}
	if !info.IsDir() {
		return protocol.Errorf(protocol.NotADirectory, "%q is not a directory", displayRel(res.Rel))
	}
	return nil
}

// Parent returns the parent of cwd. At the root it returns "" and true.
func Parent(cwd string) (string, bool) {
	if cwd == "" {
		return "", true
	}
	p := path.Dir(cwd)
	if p == "." {
		p = ""
	}
	return p, false
}

func displayRel(rel string) string {
	if rel == "" {
		return "/"
	}
	return rel
}
