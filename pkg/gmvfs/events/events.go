// Package events maps object event kinds to the file base names the project
// server uses for them on disk, e.g. Step_0 or Other_10.
package events

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies one object event. The zero value is Unknown.
type Kind int

const (
	Unknown Kind = iota

	Create
	Destroy
	CleanUp

	Step
	BeginStep
	EndStep

	Alarm0
	Alarm1
	Alarm2
	Alarm3
	Alarm4
	Alarm5
	Alarm6
	Alarm7
	Alarm8
	Alarm9
	Alarm10
	Alarm11

	Draw
	DrawGui
	WindowResize
	DrawBegin
	DrawEnd
	DrawGuiBegin
	DrawGuiEnd
	PreDraw
	PostDraw

	OutsideRoom
	IntersectBoundary
	GameStart
	GameEnd
	RoomStart
	RoomEnd
	AnimationEnd
	EndOfPath

	UserEvent0
	UserEvent1
	UserEvent2
	UserEvent3
	UserEvent4
	UserEvent5
	UserEvent6
	UserEvent7
	UserEvent8
	UserEvent9
	UserEvent10
	UserEvent11
	UserEvent12
	UserEvent13
	UserEvent14
	UserEvent15

	AsyncImageLoaded
	AsyncHttp
	AsyncDialog
	AsyncIAP
	AsyncCloud
	AsyncNetworking
	AsyncSteam
	AsyncSocial
	AsyncPushNotification
	AsyncSaveLoad
	AsyncAudioRecording
	AsyncAudioPlayback
	AsyncSystem

	numKinds
)

type entry struct {
	kind     Kind
	fileName string
	ident    string
	pretty   string
}

// table is ordered the way events are listed under an object.
var table = buildTable()

func buildTable() []entry {
	t := []entry{
		{Create, "Create_0", "create", "Create"},
		{Destroy, "Destroy_0", "destroy", "Destroy"},
		{CleanUp, "CleanUp_0", "clean-up", "Clean Up"},
		{Step, "Step_0", "step", "Step"},
		{BeginStep, "Step_1", "begin-step", "Begin Step"},
		{EndStep, "Step_2", "end-step", "End Step"},
	}

	for i := 0; i < 12; i++ {
		t = append(t, entry{
			Alarm0 + Kind(i),
			fmt.Sprintf("Alarm_%d", i),
			fmt.Sprintf("alarm%d", i),
			fmt.Sprintf("Alarm %d", i),
		})
	}

	t = append(t,
		entry{Draw, "Draw_0", "draw", "Draw"},
		entry{DrawGui, "Draw_64", "draw-gui", "Draw GUI"},
		entry{WindowResize, "Draw_65", "window-resize", "Window Resize"},
		entry{DrawBegin, "Draw_72", "draw-begin", "Draw Begin"},
		entry{DrawEnd, "Draw_73", "draw-end", "Draw End"},
		entry{DrawGuiBegin, "Draw_74", "draw-gui-begin", "Draw GUI Begin"},
		entry{DrawGuiEnd, "Draw_75", "draw-gui-end", "Draw GUI End"},
		entry{PreDraw, "Draw_76", "pre-draw", "Pre-Draw"},
		entry{PostDraw, "Draw_77", "post-draw", "Post-Draw"},

		entry{OutsideRoom, "Other_0", "outside-room", "Outside Room"},
		entry{IntersectBoundary, "Other_1", "intersect-boundary", "Intersect Boundary"},
		entry{GameStart, "Other_2", "game-start", "Game Start"},
		entry{GameEnd, "Other_3", "game-end", "Game End"},
		entry{RoomStart, "Other_4", "room-start", "Room Start"},
		entry{RoomEnd, "Other_5", "room-end", "Room End"},
		entry{AnimationEnd, "Other_7", "animation-end", "Animation End"},
		entry{EndOfPath, "Other_8", "end-of-path", "End Of Path"},
	)

	for i := 0; i < 16; i++ {
		t = append(t, entry{
			UserEvent0 + Kind(i),
			fmt.Sprintf("Other_%d", 10+i),
			fmt.Sprintf("user-event%d", i),
			fmt.Sprintf("User Event %d", i),
		})
	}

	t = append(t,
		entry{AsyncImageLoaded, "Other_60", "async-image-loaded", "Async - Image Loaded"},
		entry{AsyncHttp, "Other_62", "async-http", "Async - HTTP"},
		entry{AsyncDialog, "Other_63", "async-dialog", "Async - Dialog"},
		entry{AsyncIAP, "Other_66", "async-iap", "Async - In-App Purchase"},
		entry{AsyncCloud, "Other_67", "async-cloud", "Async - Cloud"},
		entry{AsyncNetworking, "Other_68", "async-networking", "Async - Networking"},
		entry{AsyncSteam, "Other_69", "async-steam", "Async - Steam"},
		entry{AsyncSocial, "Other_70", "async-social", "Async - Social"},
		entry{AsyncPushNotification, "Other_71", "async-push-notification", "Async - Push Notification"},
		entry{AsyncSaveLoad, "Other_72", "async-save-load", "Async - Save/Load"},
		entry{AsyncAudioRecording, "Other_73", "async-audio-recording", "Async - Audio Recording"},
		entry{AsyncAudioPlayback, "Other_74", "async-audio-playback", "Async - Audio Playback"},
		entry{AsyncSystem, "Other_75", "async-system", "Async - System"},
	)

	return t
}

var (
	byKind     = make(map[Kind]entry, len(table))
	byFileName = make(map[string]entry, len(table))
	byIdent    = make(map[string]entry, len(table))
)

func init() {
	for _, e := range table {
		byKind[e.kind] = e
		byFileName[e.fileName] = e
		byIdent[e.ident] = e
	}
	if len(byKind) != int(numKinds)-1 || len(byFileName) != len(table) || len(byIdent) != len(table) {
		panic("events: table is not a bijection")
	}
}

// All returns every known kind in listing order.
func All() []Kind {
	kinds := make([]Kind, len(table))
	for i, e := range table {
		kinds[i] = e.kind
	}
	return kinds
}

// FileName returns the server's file base name for k, or "" for Unknown.
func (k Kind) FileName() string {
	return byKind[k].fileName
}

// String returns the command-line identifier of k, e.g. "begin-step".
func (k Kind) String() string {
	if e, ok := byKind[k]; ok {
		return e.ident
	}
	return "unknown"
}

// Pretty returns the display name of k, e.g. "Begin Step".
func (k Kind) Pretty() string {
	if e, ok := byKind[k]; ok {
		return e.pretty
	}
	return "Unknown"
}

// FromFileName maps a server file base name to its kind. Names outside the
// table, such as collision or keyboard events, map to Unknown.
func FromFileName(name string) Kind {
	return byFileName[name].kind
}

// Parse accepts a command-line identifier, a file base name or a display
// name, ignoring case.
func Parse(s string) (Kind, error) {
	if e, ok := byIdent[strings.ToLower(s)]; ok {
		return e.kind, nil
	}
	if e, ok := byFileName[s]; ok {
		return e.kind, nil
	}
	for _, e := range table {
		if strings.EqualFold(e.fileName, s) || strings.EqualFold(e.pretty, s) {
			return e.kind, nil
		}
	}
	return Unknown, fmt.Errorf("unknown event %q", s)
}

// Missing returns the kinds not present among fileNames, in listing order.
func Missing(fileNames []string) []Kind {
	present := make(map[Kind]bool, len(fileNames))
	for _, name := range fileNames {
		present[FromFileName(name)] = true
	}

	var missing []Kind
	for _, e := range table {
		if !present[e.kind] {
			missing = append(missing, e.kind)
		}
	}
	return missing
}

// SortFileNames orders event file base names by listing order. Names not in
// the table follow all known names, sorted lexically.
func SortFileNames(fileNames []string) {
	rank := func(name string) int {
		if k := FromFileName(name); k != Unknown {
			return int(k)
		}
		return int(numKinds)
	}
	sort.SliceStable(fileNames, func(i, j int) bool {
		ri, rj := rank(fileNames[i]), rank(fileNames[j])
		if ri != rj {
			return ri < rj
		}
		return fileNames[i] < fileNames[j]
	})
}
