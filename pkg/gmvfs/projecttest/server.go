// Package projecttest provides an in-memory project server for tests. It
// speaks the same wire protocol as the real server, either directly as a
// protocol.Transport or over a line-oriented stream.
package projecttest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// RootPath is the view path of the project root folder.
const RootPath = "folders"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type folder struct {
	name    string
	parent  *folder
	folders []*folder
	files   []*resource
}

func (f *folder) path() string {
	if f.parent == nil {
		return RootPath
	}
	return strings.TrimSuffix(f.parent.path(), ".yy") + "/" + f.name + ".yy"
}

func (f *folder) viewPath() protocol.ViewPath {
	return protocol.ViewPath{Name: f.name, Path: f.path()}
}

type resource struct {
	name   string
	kind   protocol.ResourceKind
	parent *folder
	events []string
}

func (r *resource) filesystemPath() protocol.FilesystemPath {
	dir := strings.ToLower(string(r.kind)) + "s"
	return protocol.FilesystemPath{Name: r.name, Path: fmt.Sprintf("%s/%s/%s.yy", dir, r.name, r.name)}
}

// resourceDocument is what CreateResourceYyFile hands back and AddResource
// accepts.
type resourceDocument struct {
	Name     string                `json:"name"`
	Resource protocol.ResourceKind `json:"resourceType"`
	Parent   protocol.ViewPath     `json:"parent"`
}

// Server is an in-memory project. All methods are safe for concurrent use.
type Server struct {
	// Chatter makes ServeLines emit a non-JSON log line before every
	// response.
	Chatter bool
	// AssociatedDataAsFile makes object event maps come back as a temporary
	// file instead of inline.
	AssociatedDataAsFile bool
	// ProjectDir prefixes the paths returned by the path queries.
	ProjectDir string

	mu           sync.Mutex
	metadata     protocol.ProjectMetadata
	root         *folder
	resources    map[string]*resource
	commands     []protocol.Kind
	failures     map[protocol.Kind][]protocol.ErrorDetail
	transportErr error
	shutdown     bool
	tempDir      string
}

// NewServer creates an empty project named name.
func NewServer(name string) *Server {
	root := &folder{name: name}
	return &Server{
		ProjectDir: "/projects/" + name,
		metadata: protocol.ProjectMetadata{
			Name:        name,
			Root:        root.viewPath(),
			IDEVersion:  "2.3.0.529",
			ProjectFile: "/projects/" + name + "/" + name + ".yyp",
		},
		root:      root,
		resources: make(map[string]*resource),
		failures:  make(map[protocol.Kind][]protocol.ErrorDetail),
	}
}

// Metadata returns the handshake payload.
func (s *Server) Metadata() protocol.ProjectMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Root returns the view path of the root folder.
func (s *Server) Root() protocol.ViewPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.viewPath()
}

// AddFolder creates a folder under parent and returns its view path. It
// panics if parent does not exist.
func (s *Server) AddFolder(parent protocol.ViewPath, name string) protocol.ViewPath {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findFolder(parent.Path)
	if p == nil {
		panic("projecttest: no folder " + parent.Path)
	}
	f := &folder{name: name, parent: p}
	p.folders = append(p.folders, f)
	return f.viewPath()
}

// AddResource creates a resource under parent. Objects get the given event
// file base names.
func (s *Server) AddResource(parent protocol.ViewPath, kind protocol.ResourceKind, name string, eventFiles ...string) protocol.FilesystemPath {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findFolder(parent.Path)
	if p == nil {
		panic("projecttest: no folder " + parent.Path)
	}
	r := &resource{name: name, kind: kind, parent: p, events: append([]string(nil), eventFiles...)}
	p.files = append(p.files, r)
	s.resources[name] = r
	return r.filesystemPath()
}

// Events returns the event file base names of an object.
func (s *Server) Events(object string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.resources[object]; ok {
		return append([]string(nil), r.events...)
	}
	return nil
}

// HasResource reports whether a resource with that name exists.
func (s *Server) HasResource(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[name]
	return ok
}

// HasFolder reports whether a folder with that view path exists.
func (s *Server) HasFolder(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findFolder(path) != nil
}

// FailNext makes the next command of the given kind fail with detail.
// Calls queue up.
func (s *Server) FailNext(kind protocol.Kind, detail protocol.ErrorDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = append(s.failures[kind], detail)
}

// BreakTransport makes every later RoundTrip fail with err, as if the
// connection had dropped. A nil err restores it.
func (s *Server) BreakTransport(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportErr = err
}

// Commands returns the kinds of all commands handled so far, in order.
func (s *Server) Commands() []protocol.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Kind(nil), s.commands...)
}

// Count returns how many commands of kind were handled.
func (s *Server) Count(kind protocol.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, k := range s.commands {
		if k == kind {
			n++
		}
	}
	return n
}

// Reset forgets the recorded commands.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// ShutdownReceived reports whether a Shutdown command arrived.
func (s *Server) ShutdownReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// RoundTrip implements protocol.Transport.
func (s *Server) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	broken := s.transportErr
	s.mu.Unlock()
	if broken != nil {
		return nil, broken
	}

	resp, _ := s.Handle(request)
	if resp == nil {
		return nil, fmt.Errorf("no response to %s", request)
	}
	return resp, nil
}

// ServeLines writes the startup handshake to w, then answers each line read
// from r until r ends or a Shutdown command arrives.
func (s *Server) ServeLines(r io.Reader, w io.Writer) error {
	hello, err := protocol.EncodeSuccess(s.Metadata())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", hello); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		resp, kind := s.Handle(scanner.Bytes())
		if kind == protocol.KindShutdown {
			return nil
		}
		if s.Chatter {
			if _, err := fmt.Fprintf(w, "handled %s\n", kind); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n", resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Handle decodes one wire command and returns the wire response along with
// the command kind. Shutdown has no response.
func (s *Server) Handle(request []byte) ([]byte, protocol.Kind) {
	env, kind, err := protocol.Decode(request)
	if err != nil {
		return mustFailure(protocol.ErrorDetail{Kind: protocol.ErrorKindBadCommand, Message: err.Error()}), ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, kind)

	if queued := s.failures[kind]; len(queued) > 0 {
		s.failures[kind] = queued[1:]
		return mustFailure(queued[0]), kind
	}

	payload, detail := s.dispatch(kind, env.SubCommand)
	if kind == protocol.KindShutdown {
		return nil, kind
	}
	if detail != nil {
		return mustFailure(*detail), kind
	}

	resp, err := protocol.EncodeSuccess(payload)
	if err != nil {
		return mustFailure(protocol.ErrorDetail{Kind: protocol.ErrorKindInternal, Message: err.Error()}), kind
	}
	return resp, kind
}

func mustFailure(detail protocol.ErrorDetail) []byte {
	data, err := protocol.EncodeFailure(detail)
	if err != nil {
		panic(err)
	}
	return data
}

func bad(format string, args ...any) *protocol.ErrorDetail {
	return &protocol.ErrorDetail{Kind: protocol.ErrorKindBadCommand, Message: fmt.Sprintf(format, args...)}
}

func unmarshal[T any](body json.RawMessage) (T, *protocol.ErrorDetail) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, bad("%v", err)
	}
	return v, nil
}

func (s *Server) dispatch(kind protocol.Kind, body json.RawMessage) (any, *protocol.ErrorDetail) {
	switch kind {
	case protocol.KindGetFullVfs:
		return s.graph(s.root), nil

	case protocol.KindGetFolderVfs:
		cmd, d := unmarshal[protocol.GetFolderVfs](body)
		if d != nil {
			return nil, d
		}
		f, d := s.folderOrError(cmd.Folder.Path)
		if d != nil {
			return nil, d
		}
		return s.graph(f), nil

	case protocol.KindCreateFolder:
		cmd, d := unmarshal[protocol.CreateFolderVfs](body)
		if d != nil {
			return nil, d
		}
		return s.createFolder(cmd)

	case protocol.KindRenameFolder:
		cmd, d := unmarshal[protocol.RenameFolderVfs](body)
		if d != nil {
			return nil, d
		}
		return nil, s.renameFolder(cmd)

	case protocol.KindRemoveFolder:
		cmd, d := unmarshal[protocol.RemoveFolderVfs](body)
		if d != nil {
			return nil, d
		}
		return nil, s.removeFolder(cmd)

	case protocol.KindAddResource:
		cmd, d := unmarshal[protocol.AddResource](body)
		if d != nil {
			return nil, d
		}
		return nil, s.addResource(cmd)

	case protocol.KindRemoveResource:
		cmd, d := unmarshal[protocol.RemoveResource](body)
		if d != nil {
			return nil, d
		}
		return nil, s.removeResource(cmd)

	case protocol.KindRenameResource:
		cmd, d := unmarshal[protocol.RenameResource](body)
		if d != nil {
			return nil, d
		}
		return nil, s.renameResource(cmd)

	case protocol.KindGetAssociatedData:
		cmd, d := unmarshal[protocol.GetAssociatedDataResource](body)
		if d != nil {
			return nil, d
		}
		return s.associatedData(cmd)

	case protocol.KindCreateResourceYyFile:
		cmd, d := unmarshal[protocol.CreateResourceYyFile](body)
		if d != nil {
			return nil, d
		}
		if !identifier.MatchString(cmd.Name) {
			return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindInvalidName, Name: cmd.Name}
		}
		doc, _ := json.Marshal(resourceDocument{Name: cmd.Name, Resource: cmd.Resource, Parent: cmd.ParentFolder})
		return protocol.CreatedResource{Resource: doc}, nil

	case protocol.KindCanUseResourceName:
		cmd, d := unmarshal[protocol.CanUseResourceName](body)
		if d != nil {
			return nil, d
		}
		_, taken := s.resources[cmd.Name]
		return protocol.NameValidity{Valid: identifier.MatchString(cmd.Name) && !taken}, nil

	case protocol.KindCanUseFolderName:
		cmd, d := unmarshal[protocol.CanUseFolderName](body)
		if d != nil {
			return nil, d
		}
		f, d := s.folderOrError(cmd.Folder.Path)
		if d != nil {
			return nil, d
		}
		return protocol.NameValidity{Valid: validFolderName(cmd.Name) && childFolder(f, cmd.Name) == nil}, nil

	case protocol.KindPrettyEventNames:
		cmd, d := unmarshal[protocol.PrettyEventNames](body)
		if d != nil {
			return nil, d
		}
		names := make([]string, len(cmd.EventNames))
		for i, name := range cmd.EventNames {
			if k := events.FromFileName(name); k != events.Unknown {
				names[i] = k.Pretty()
			} else {
				names[i] = name
			}
		}
		return protocol.EventNames{Names: names}, nil

	case protocol.KindScriptGmlPath:
		cmd, d := unmarshal[protocol.ScriptGmlPath](body)
		if d != nil {
			return nil, d
		}
		r, ok := s.resources[cmd.ScriptName]
		if !ok || r.kind != protocol.ResourceScript {
			return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindResourceNotFound, Name: cmd.ScriptName}
		}
		return protocol.RequestedPath{Path: filepath.Join(s.ProjectDir, "scripts", r.name, r.name+".gml")}, nil

	case protocol.KindEventGmlPath:
		cmd, d := unmarshal[protocol.EventGmlPath](body)
		if d != nil {
			return nil, d
		}
		r, d := s.objectOrError(cmd.ObjectName)
		if d != nil {
			return nil, d
		}
		return protocol.RequestedPath{Path: filepath.Join(s.ProjectDir, "objects", r.name, cmd.EventFileName+".gml")}, nil

	case protocol.KindCreateEvent:
		cmd, d := unmarshal[protocol.CreateEvent](body)
		if d != nil {
			return nil, d
		}
		r, d := s.objectOrError(cmd.ObjectName)
		if d != nil {
			return nil, d
		}
		for _, e := range r.events {
			if e == cmd.EventFileName {
				return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindNameTaken, Name: cmd.EventFileName}
			}
		}
		r.events = append(r.events, cmd.EventFileName)
		return protocol.Empty{}, nil

	case protocol.KindDeleteEvent:
		cmd, d := unmarshal[protocol.DeleteEvent](body)
		if d != nil {
			return nil, d
		}
		r, d := s.objectOrError(cmd.ObjectName)
		if d != nil {
			return nil, d
		}
		for i, e := range r.events {
			if e == cmd.EventFileName {
				r.events = append(r.events[:i], r.events[i+1:]...)
				return protocol.Empty{}, nil
			}
		}
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindEventNotFound, Name: cmd.EventFileName}

	case protocol.KindSerialize:
		return protocol.Empty{}, nil

	case protocol.KindProjectInfo:
		return s.metadata, nil

	case protocol.KindShutdown:
		s.shutdown = true
		return nil, nil
	}

	return nil, bad("unsupported command %s", kind)
}

func (s *Server) graph(f *folder) protocol.FolderGraph {
	g := protocol.FolderGraph{Name: f.name, ViewPath: f.viewPath(), Folders: []protocol.ViewPath{}, Files: []protocol.FileEntry{}}
	for _, sub := range f.folders {
		g.Folders = append(g.Folders, sub.viewPath())
	}
	for _, r := range f.files {
		g.Files = append(g.Files, protocol.FileEntry{
			FilesystemPath: r.filesystemPath(),
			Descriptor:     protocol.ResourceDescriptor{Resource: r.kind, ParentLocation: f.path()},
		})
	}
	return g
}

func (s *Server) findFolder(path string) *folder {
	var walk func(f *folder) *folder
	walk = func(f *folder) *folder {
		if f.path() == path {
			return f
		}
		for _, sub := range f.folders {
			if found := walk(sub); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(s.root)
}

func (s *Server) folderOrError(path string) (*folder, *protocol.ErrorDetail) {
	if f := s.findFolder(path); f != nil {
		return f, nil
	}
	return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindFolderNotFound, Path: path}
}

func (s *Server) objectOrError(name string) (*resource, *protocol.ErrorDetail) {
	r, ok := s.resources[name]
	if !ok || r.kind != protocol.ResourceObject {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindResourceNotFound, Name: name}
	}
	return r, nil
}

func validFolderName(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.ContainsAny(name, `/\:*?"<>|`) && name != "." && name != ".."
}

func childFolder(f *folder, name string) *folder {
	for _, sub := range f.folders {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

func (s *Server) createFolder(cmd protocol.CreateFolderVfs) (any, *protocol.ErrorDetail) {
	parent, d := s.folderOrError(cmd.Folder.Path)
	if d != nil {
		return nil, d
	}
	if !validFolderName(cmd.Name) {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindInvalidName, Name: cmd.Name}
	}
	if childFolder(parent, cmd.Name) != nil {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindNameTaken, Name: cmd.Name}
	}

	f := &folder{name: cmd.Name, parent: parent}
	parent.folders = append(parent.folders, f)
	return protocol.CreatedFolder{Folder: f.viewPath()}, nil
}

func (s *Server) renameFolder(cmd protocol.RenameFolderVfs) *protocol.ErrorDetail {
	f, d := s.folderOrError(cmd.Folder.Path)
	if d != nil {
		return d
	}
	if f.parent == nil {
		return bad("cannot rename the root folder")
	}
	if !validFolderName(cmd.NewName) {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindInvalidName, Name: cmd.NewName}
	}
	if other := childFolder(f.parent, cmd.NewName); other != nil && other != f {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindNameTaken, Name: cmd.NewName}
	}
	f.name = cmd.NewName
	return nil
}

func (s *Server) removeFolder(cmd protocol.RemoveFolderVfs) *protocol.ErrorDetail {
	f, d := s.folderOrError(cmd.Folder.Path)
	if d != nil {
		return d
	}
	if f.parent == nil {
		return bad("cannot remove the root folder")
	}
	if !cmd.Recursive && (len(f.folders) > 0 || len(f.files) > 0) {
		return bad("folder %s is not empty", f.path())
	}

	var drop func(f *folder)
	drop = func(f *folder) {
		for _, r := range f.files {
			delete(s.resources, r.name)
		}
		for _, sub := range f.folders {
			drop(sub)
		}
	}
	drop(f)

	siblings := f.parent.folders
	for i, sub := range siblings {
		if sub == f {
			f.parent.folders = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Server) addResource(cmd protocol.AddResource) *protocol.ErrorDetail {
	var doc resourceDocument
	if err := json.Unmarshal(cmd.Data, &doc); err != nil {
		return bad("resource document: %v", err)
	}
	if _, taken := s.resources[doc.Name]; taken {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindNameTaken, Name: doc.Name}
	}
	parent, d := s.folderOrError(doc.Parent.Path)
	if d != nil {
		return d
	}

	r := &resource{name: doc.Name, kind: cmd.Resource, parent: parent}
	if cmd.Resource == protocol.ResourceObject && cmd.AssociatedData.Type == protocol.DataDefault {
		r.events = []string{events.Create.FileName()}
	}
	parent.files = append(parent.files, r)
	s.resources[r.name] = r
	return nil
}

func (s *Server) removeResource(cmd protocol.RemoveResource) *protocol.ErrorDetail {
	r, ok := s.resources[cmd.Name]
	if !ok || r.kind != cmd.Resource {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindResourceNotFound, Name: cmd.Name}
	}
	delete(s.resources, r.name)

	files := r.parent.files
	for i, f := range files {
		if f == r {
			r.parent.files = append(files[:i], files[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Server) renameResource(cmd protocol.RenameResource) *protocol.ErrorDetail {
	r, ok := s.resources[cmd.Name]
	if !ok || r.kind != cmd.Resource {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindResourceNotFound, Name: cmd.Name}
	}
	if !identifier.MatchString(cmd.NewName) {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindInvalidName, Name: cmd.NewName}
	}
	if _, taken := s.resources[cmd.NewName]; taken {
		return &protocol.ErrorDetail{Kind: protocol.ErrorKindNameTaken, Name: cmd.NewName}
	}
	delete(s.resources, r.name)
	r.name = cmd.NewName
	s.resources[r.name] = r
	return nil
}

func (s *Server) associatedData(cmd protocol.GetAssociatedDataResource) (any, *protocol.ErrorDetail) {
	r, ok := s.resources[cmd.Name]
	if !ok || r.kind != cmd.Resource {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindResourceNotFound, Name: cmd.Name}
	}

	eventMap := make(map[string]string, len(r.events))
	for _, e := range r.events {
		eventMap[e] = ""
	}
	// Marshal sorts map keys; listing order is the client's job.
	data, _ := json.Marshal(eventMap)

	if !s.AssociatedDataAsFile {
		return protocol.AssociatedData{Data: protocol.SerializedData{Type: protocol.DataValue, Data: string(data)}}, nil
	}

	if s.tempDir == "" {
		dir, err := os.MkdirTemp("", "projecttest-")
		if err != nil {
			return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindInternal, Message: err.Error()}
		}
		s.tempDir = dir
	}
	file, err := os.CreateTemp(s.tempDir, r.name+"-*.json")
	if err != nil {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindInternal, Message: err.Error()}
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return nil, &protocol.ErrorDetail{Kind: protocol.ErrorKindInternal, Message: err.Error()}
	}
	return protocol.AssociatedData{Data: protocol.SerializedData{Type: protocol.DataFilename, Data: file.Name()}}, nil
}

// TempFiles lists associated-data files that have not been removed yet.
func (s *Server) TempFiles() []string {
	s.mu.Lock()
	dir := s.tempDir
	s.mu.Unlock()

	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	sort.Strings(names)
	return names
}

// Close removes the server's temporary directory.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(s.tempDir)
	s.tempDir = ""
	return err
}
