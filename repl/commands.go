package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/drpcorg/zerkalo"
	"github.com/drpcorg/zerkalo/store"
)

var ErrNoArchive = errors.New("no archive open, see: open <dir>")
var ErrNoDocument = errors.New("no current document, see: new / load")

var HelpOpen = errors.New("open <dir>")
var HelpNew = errors.New("new {\"some\":\"json\"}")
var HelpLoad = errors.New("load <uuid>")
var HelpGet = errors.New("get <path>, e.g. get a.b.0")
var HelpSet = errors.New("set <path> <json>")
var HelpDel = errors.New("del <path>")
var HelpRestore = errors.New("restore <version>")
var HelpReplica = errors.New("replica <name>")
var HelpRShow = errors.New("rshow <name>")
var HelpListen = errors.New("listen tcp://host:port")
var HelpConnect = errors.New("connect tcp://host:port")

func (repl *REPL) CommandOpen(args []string) (err error) {
	if len(args) != 1 {
		return HelpOpen
	}
	if repl.archive != nil {
		_ = repl.archive.Close()
	}
	repl.archive, err = store.Open(args[0], store.Options{Logger: repl.log})
	if err == nil {
		fmt.Printf("archive %s open\n", args[0])
	}
	return
}

func (repl *REPL) CommandNew(arg string) (err error) {
	initial := map[string]any{}
	if len(arg) > 0 {
		var plain any
		if err = json.Unmarshal([]byte(arg), &plain); err != nil {
			return HelpNew
		}
		m, ok := plain.(map[string]any)
		if !ok {
			return HelpNew
		}
		initial = m
	}
	if repl.archive != nil {
		repl.docId, repl.doc, err = repl.archive.New(initial)
		if err == nil {
			fmt.Printf("document %s created\n", repl.docId)
		}
		return
	}
	repl.doc, err = zerkalo.Create(initial)
	repl.docId = uuid.Nil
	if err == nil {
		fmt.Println("document created (not archived)")
	}
	return
}

func (repl *REPL) CommandLoad(args []string) (err error) {
	if len(args) != 1 {
		return HelpLoad
	}
	if repl.archive == nil {
		return ErrNoArchive
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return HelpLoad
	}
	doc, err := repl.archive.Load(id)
	if err != nil {
		return err
	}
	repl.doc, repl.docId = doc, id
	fmt.Printf("document %s loaded\n", id)
	return nil
}

func (repl *REPL) CommandSave(args []string) error {
	if repl.archive == nil {
		return ErrNoArchive
	}
	if repl.doc == nil {
		return ErrNoDocument
	}
	if repl.docId == uuid.Nil {
		repl.docId = uuid.Must(uuid.NewV7())
	}
	err := repl.archive.Save(repl.docId, repl.doc)
	if err == nil {
		fmt.Printf("document %s saved\n", repl.docId)
	}
	return err
}

func (repl *REPL) CommandList(args []string) error {
	if repl.archive == nil {
		return ErrNoArchive
	}
	ids, err := repl.archive.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id.String())
	}
	return nil
}

// viewAt walks a dotted path down from the current root, returning
// the parent view and the final key.
func (repl *REPL) viewAt(path string) (*zerkalo.View, string, error) {
	if repl.doc == nil {
		return nil, "", ErrNoDocument
	}
	keys := strings.Split(path, ".")
	v := repl.doc
	for _, key := range keys[:len(keys)-1] {
		child, err := v.Get(key)
		if err != nil {
			return nil, "", err
		}
		cv, ok := child.(*zerkalo.View)
		if !ok {
			return nil, "", fmt.Errorf("%q is not a container", key)
		}
		v = cv
	}
	return v, keys[len(keys)-1], nil
}

func (repl *REPL) CommandGet(args []string) error {
	if len(args) != 1 {
		return HelpGet
	}
	v, key, err := repl.viewAt(args[0])
	if err != nil {
		return err
	}
	val, err := v.Get(key)
	if err != nil {
		return err
	}
	if cv, ok := val.(*zerkalo.View); ok {
		if val, err = cv.Plain(); err != nil {
			return err
		}
	}
	return printJSON(val)
}

func (repl *REPL) CommandSet(args []string) error {
	if len(args) < 2 {
		return HelpSet
	}
	v, key, err := repl.viewAt(args[0])
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal([]byte(strings.Join(args[1:], " ")), &value); err != nil {
		return HelpSet
	}
	return v.Set(key, value)
}

func (repl *REPL) CommandDel(args []string) error {
	if len(args) != 1 {
		return HelpDel
	}
	v, key, err := repl.viewAt(args[0])
	if err != nil {
		return err
	}
	return v.Delete(key)
}

func (repl *REPL) CommandShow(args []string) error {
	if repl.doc == nil {
		return ErrNoDocument
	}
	plain, err := zerkalo.Detach(repl.doc)
	if err != nil {
		return err
	}
	return printJSON(plain)
}

func (repl *REPL) CommandLog(args []string) error {
	if repl.doc == nil {
		return ErrNoDocument
	}
	logView, err := zerkalo.GetLog(repl.doc)
	if err != nil {
		return err
	}
	entries, err := logView.Plain()
	if err != nil {
		return err
	}
	for lsn, e := range entries.([]any) {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\n", lsn, raw)
	}
	return nil
}

func (repl *REPL) CommandRestore(args []string) error {
	if len(args) != 1 {
		return HelpRestore
	}
	if repl.doc == nil {
		return ErrNoDocument
	}
	var k int
	if _, err := fmt.Sscanf(args[0], "%d", &k); err != nil {
		return HelpRestore
	}
	plain, err := zerkalo.RestoreVersion(repl.doc, k)
	if err != nil {
		return err
	}
	return printJSON(plain)
}

func (repl *REPL) CommandSnapshot(args []string) error {
	if repl.doc == nil {
		return ErrNoDocument
	}
	snap, err := zerkalo.GetSnapshot(repl.doc)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func (repl *REPL) CommandReplica(args []string) error {
	if len(args) != 1 {
		return HelpReplica
	}
	if repl.doc == nil {
		return ErrNoDocument
	}
	r, err := zerkalo.NewReplica(repl.doc)
	if err != nil {
		return err
	}
	emitter, err := zerkalo.EventEmitter(repl.doc)
	if err != nil {
		return err
	}
	emitter.OnChange(r.Apply)
	repl.replicas[args[0]] = r
	fmt.Printf("replica %s at lsn %d\n", args[0], r.LSN())
	return nil
}

func (repl *REPL) CommandReplicas(args []string) error {
	for name, r := range repl.replicas {
		fmt.Printf("%s\tlsn %d\n", name, r.LSN())
	}
	if repl.sink != nil && repl.sink.Replica() != nil {
		fmt.Printf("<remote>\tlsn %d\n", repl.sink.Replica().LSN())
	}
	return nil
}

func (repl *REPL) CommandRShow(args []string) error {
	if len(args) != 1 {
		return HelpRShow
	}
	if args[0] == "remote" && repl.sink != nil && repl.sink.Replica() != nil {
		return printJSON(repl.sink.Replica().Detach())
	}
	r, ok := repl.replicas[args[0]]
	if !ok {
		return fmt.Errorf("no replica %q", args[0])
	}
	return printJSON(r.Detach())
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
