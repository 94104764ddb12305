package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"github.com/google/uuid"

	"github.com/drpcorg/zerkalo"
	"github.com/drpcorg/zerkalo/protocol"
	"github.com/drpcorg/zerkalo/store"
	"github.com/drpcorg/zerkalo/utils"
)

// REPL per se.
type REPL struct {
	rl  *readline.Instance
	log utils.Logger

	archive *store.Store
	doc     *zerkalo.View
	docId   uuid.UUID

	replicas map[string]*zerkalo.Replica
	sink     *zerkalo.ReplicaSink
	net      *protocol.Net
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("new"),
	readline.PcItem("load"),
	readline.PcItem("save"),
	readline.PcItem("list"),

	readline.PcItem("get"),
	readline.PcItem("set"),
	readline.PcItem("del"),
	readline.PcItem("show"),
	readline.PcItem("log"),
	readline.PcItem("restore"),
	readline.PcItem("snapshot"),

	readline.PcItem("replica"),
	readline.PcItem("replicas"),
	readline.PcItem("rshow"),

	readline.PcItem("listen"),
	readline.PcItem("connect"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.log = utils.NewDefaultLogger(slog.LevelWarn)
	repl.replicas = make(map[string]*zerkalo.Replica)
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".zerkalo_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.net != nil {
		_ = repl.net.Close()
		repl.net = nil
	}
	if repl.archive != nil {
		_ = repl.archive.Close()
		repl.archive = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	args := strings.Fields(line)
	cmd, args := args[0], args[1:]

	switch cmd {
	case "help":
		fmt.Println("open new load save list | get set del show log restore snapshot | replica replicas rshow | listen connect | exit")
	// ----- archive handling -----
	case "open":
		err = repl.CommandOpen(args)
	case "new":
		err = repl.CommandNew(strings.TrimSpace(strings.TrimPrefix(line, cmd)))
	case "load":
		err = repl.CommandLoad(args)
	case "save":
		err = repl.CommandSave(args)
	case "list":
		err = repl.CommandList(args)
	// ----- document handling -----
	case "get":
		err = repl.CommandGet(args)
	case "set":
		err = repl.CommandSet(args)
	case "del":
		err = repl.CommandDel(args)
	case "show":
		err = repl.CommandShow(args)
	case "log":
		err = repl.CommandLog(args)
	case "restore":
		err = repl.CommandRestore(args)
	case "snapshot":
		err = repl.CommandSnapshot(args)
	// ----- replicas -----
	case "replica":
		err = repl.CommandReplica(args)
	case "replicas":
		err = repl.CommandReplicas(args)
	case "rshow":
		err = repl.CommandRShow(args)
	// ----- networking -----
	case "listen":
		err = repl.CommandListen(args)
	case "connect":
		err = repl.CommandConnect(args)
	case "exit", "quit":
		return io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}

func (repl *REPL) ensureNet() *protocol.Net {
	if repl.net == nil {
		repl.net = protocol.NewNet(repl.log, nil, repl.installPeer, repl.destroyPeer)
	}
	return repl.net
}

func (repl *REPL) installPeer(name string) protocol.FeedDrainCloser {
	if strings.HasPrefix(name, "connect:") {
		repl.sink = zerkalo.NewReplicaSink(repl.log)
		return repl.sink
	}
	feed, err := zerkalo.NewSourceFeed(repl.doc, name)
	if err != nil {
		repl.log.Error("repl: couldn't open feed", "name", name, "err", err)
		return zerkalo.NewReplicaSink(repl.log) // inert
	}
	return feed
}

func (repl *REPL) destroyPeer(name string, p protocol.FeedDrainCloser) {
	_ = p.Close()
}

func (repl *REPL) CommandListen(args []string) error {
	if len(args) != 1 {
		return HelpListen
	}
	if repl.doc == nil {
		return ErrNoDocument
	}
	return repl.ensureNet().Listen(context.Background(), args[0])
}

func (repl *REPL) CommandConnect(args []string) error {
	if len(args) != 1 {
		return HelpConnect
	}
	return repl.ensureNet().Connect(context.Background(), args[0])
}

func main() {
	repl := REPL{}

	err := repl.Open()
	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
	}
	_ = repl.Close()
}
