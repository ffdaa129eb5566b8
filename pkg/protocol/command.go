package protocol

import (
	"encoding/hex"
	"strings"
)

// Command names as they appear in the "cmd" field of a request.
const (
	CmdPut           = "put"
	CmdGet           = "get"
	CmdView          = "view"
	CmdList          = "list"
	CmdListLong      = "listl"
	CmdListRecursive = "listr"
	CmdUp            = "up"
	CmdDown          = "down"
	CmdStatus        = "status"
)

// DigestHexLen is the length of a hex-encoded content digest.
const DigestHexLen = 64

// Command is one decoded request. The set of implementations is closed to
// this package; code that handles commands implements Handler, so a new
// command cannot be added without every handler learning about it.
type Command interface {
	// Name is the wire name of the command.
	Name() string
	// Target is the path argument, or "" for commands without one.
	Target() string
	// Request encodes the command as a request frame.
	Request() Request
	// Dispatch calls the Handler method for the concrete command.
	Dispatch(h Handler) (*Reply, error)

	sealed()
}

// Handler has one method per command.
type Handler interface {
	Put(Put) (*Reply, error)
	Get(Get) (*Reply, error)
	View(View) (*Reply, error)
	List(List) (*Reply, error)
	ListLong(ListLong) (*Reply, error)
	ListRecursive(ListRecursive) (*Reply, error)
	Up(Up) (*Reply, error)
	Down(Down) (*Reply, error)
	Status(Status) (*Reply, error)
}

// Put uploads Size bytes whose digest is Hash; the body follows the request
// on the same stream.
type Put struct {
	Path string
	Size uint64
	Hash string
}

// Get downloads a file; the body follows the response.
type Get struct{ Path string }

// View streams a file for display; the body follows the response.
type View struct{ Path string }

// List returns entry names of a directory ("" means cwd).
type List struct{ Path string }

// ListLong returns entries with size, mtime and permissions.
type ListLong struct{ Path string }

// ListRecursive returns every entry below a directory, depth first.
type ListRecursive struct{ Path string }

// Up moves the session to the parent of its cwd.
type Up struct{}

// Down moves the session into Path, or back to the previous directory
// when Path is empty.
type Down struct{ Path string }

// Status reports server identity and health.
type Status struct{}

func (Put) Name() string           { return CmdPut }
func (Get) Name() string           { return CmdGet }
func (View) Name() string          { return CmdView }
func (List) Name() string          { return CmdList }
func (ListLong) Name() string      { return CmdListLong }
func (ListRecursive) Name() string { return CmdListRecursive }
func (Up) Name() string            { return CmdUp }
func (Down) Name() string          { return CmdDown }
func (Status) Name() string        { return CmdStatus }

func (c Put) Target() string           { return c.Path }
func (c Get) Target() string           { return c.Path }
func (c View) Target() string          { return c.Path }
func (c List) Target() string          { return c.Path }
func (c ListLong) Target() string      { return c.Path }
func (c ListRecursive) Target() string { return c.Path }
func (Up) Target() string              { return "" }
func (c Down) Target() string          { return c.Path }
func (Status) Target() string          { return "" }

func (c Put) Request() Request {
	size := c.Size
	return Request{Cmd: CmdPut, Path: c.Path, Size: &size, Hash: c.Hash}
}
func (c Get) Request() Request           { return Request{Cmd: CmdGet, Path: c.Path} }
func (c View) Request() Request          { return Request{Cmd: CmdView, Path: c.Path} }
func (c List) Request() Request          { return Request{Cmd: CmdList, Path: c.Path} }
func (c ListLong) Request() Request      { return Request{Cmd: CmdListLong, Path: c.Path} }
func (c ListRecursive) Request() Request { return Request{Cmd: CmdListRecursive, Path: c.Path} }
func (Up) Request() Request              { return Request{Cmd: CmdUp} }
func (c Down) Request() Request          { return Request{Cmd: CmdDown, Target: c.Path} }
func (Status) Request() Request          { return Request{Cmd: CmdStatus} }

func (c Put) Dispatch(h Handler) (*Reply, error)           { return h.Put(c) }
func (c Get) Dispatch(h Handler) (*Reply, error)           { return h.Get(c) }
func (c View) Dispatch(h Handler) (*Reply, error)          { return h.View(c) }
func (c List) Dispatch(h Handler) (*Reply, error)          { return h.List(c) }
func (c ListLong) Dispatch(h Handler) (*Reply, error)      { return h.ListLong(c) }
func (c ListRecursive) Dispatch(h Handler) (*Reply, error) { return h.ListRecursive(c) }
func (c Up) Dispatch(h Handler) (*Reply, error)            { return h.Up(c) }
func (c Down) Dispatch(h Handler) (*Reply, error)          { return h.Down(c) }
func (c Status) Dispatch(h Handler) (*Reply, error)        { return h.Status(c) }

func (Put) sealed()           {}
func (Get) sealed()           {}
func (View) sealed()          {}
func (List) sealed()          {}
func (ListLong) sealed()      {}
func (ListRecursive) sealed() {}
func (Up) sealed()            {}
func (Down) sealed()          {}
func (Status) sealed()        {}

// Decode validates a request frame and turns it into a Command. Unknown
// command names yield Unsupported; missing or invalid fields yield
// MalformedRequest.
func Decode(req Request) (Command, error) {
	switch req.Cmd {
	case CmdPut:
		if req.Path == "" {
			return nil, Errorf(MalformedRequest, "put requires a path")
		}
		if req.Size == nil {
			return nil, Errorf(MalformedRequest, "put requires a size")
		}
		hash := strings.ToLower(req.Hash)
		if !ValidHash(hash) {
			return nil, Errorf(MalformedRequest, "put requires a %d character hex digest", DigestHexLen)
		}
		return Put{Path: req.Path, Size: *req.Size, Hash: hash}, nil
	case CmdGet:
		if req.Path == "" {
			return nil, Errorf(MalformedRequest, "get requires a path")
		}
		return Get{Path: req.Path}, nil
	case CmdView:
		if req.Path == "" {
			return nil, Errorf(MalformedRequest, "view requires a path")
		}
		return View{Path: req.Path}, nil
	case CmdList:
		return List{Path: req.Path}, nil
	case CmdListLong:
		return ListLong{Path: req.Path}, nil
	case CmdListRecursive:
		return ListRecursive{Path: req.Path}, nil
	case CmdUp:
		return Up{}, nil
	case CmdDown:
		target := req.Target
		if target == "" {
			target = req.Path
		}
		return Down{Path: target}, nil
	case CmdStatus:
		return Status{}, nil
	case "":
		return nil, Errorf(MalformedRequest, "missing cmd")
	}
	return nil, Errorf(Unsupported, "unknown command %q", req.Cmd)
}

// ValidHash reports whether s is a lowercase hex digest of the expected length.
func ValidHash(s string) bool {
	if len(s) != DigestHexLen || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
