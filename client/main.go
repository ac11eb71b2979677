package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/wfunc/blackout/config"
	"github.com/wfunc/blackout/game"
	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
)

// A headless member: it joins a room over websocket, runs its own engine and
// takes commands from stdin.
func main() {
	addr := flag.String("addr", "localhost:8080", "room service address")
	roomID := flag.String("room", "lobby", "room to join")
	name := flag.String("name", "", "display name")
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	logger.InitDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := network.Dial(ctx, *addr, *roomID, *name)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	logger.Log.Infof("Joined room %s as %s", client.Room(), client.LocalID())

	inbox := network.NewInbox()
	engine := game.NewEngine(cfg.Game, client, inbox)
	engine.Subscribe(func(ev game.Event) { printEvent(ev) })

	go func() {
		if err := client.Run(ctx, inbox, cfg.Server.Heartbeat); err != nil && ctx.Err() == nil {
			logger.Log.Errorf("Connection lost: %v", err)
			stop()
		}
	}()
	go engine.Run(ctx)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: meet, vote <name>, skip, ready, start, who, quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleCommand(engine, strings.Fields(line)); quit {
				return
			}
		}
	}
}

func handleCommand(engine *game.Engine, fields []string) (quit bool) {
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "meet":
		engine.RequestMeeting()
	case "vote":
		if len(fields) < 2 {
			fmt.Println("usage: vote <name>")
			return false
		}
		err = engine.CastVote(resolveMember(engine, fields[1]))
	case "skip":
		err = engine.Skip()
	case "ready":
		err = engine.SetReady(true)
	case "start":
		err = engine.StartRound()
	case "who":
		printStatus(engine)
	case "quit":
		return true
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	if err != nil {
		fmt.Println("error:", err)
	}
	return false
}

// resolveMember accepts a display name or a member id.
func resolveMember(engine *game.Engine, ref string) models.MemberID {
	for _, m := range engine.Members() {
		if m.Name == ref {
			return m.ID
		}
	}
	return models.MemberID(ref)
}

func printStatus(engine *game.Engine) {
	st := engine.Snapshot()
	fmt.Printf("phase=%s clock=%s meeting=%d authority=%t\n", st.Phase, engine.ClockText(), st.Meeting, engine.IsAuthority())
	if st.Phase == models.PhaseVoting {
		fmt.Printf("voting closes in %s\n", engine.VotingRemaining().Round(time.Second))
	}
	for _, m := range engine.Members() {
		fmt.Printf("  %-12s alive=%t ready=%t voted=%t\n", m.Name, m.Alive, m.Ready, m.Voted)
	}
}

func printEvent(ev game.Event) {
	switch ev.Kind {
	case game.EventPhaseChanged:
		fmt.Printf("* phase: %s\n", ev.Phase)
	case game.EventLighting:
		if ev.Dark {
			fmt.Println("* the lights went out")
		} else {
			fmt.Println("* the lights are on")
		}
	case game.EventVotingOpened:
		fmt.Printf("* meeting %d opened\n", ev.Meeting)
	case game.EventVoterMarked:
		fmt.Printf("* %s voted\n", ev.Member)
	case game.EventResult:
		fmt.Printf("* %s\n", ev.Message)
	case game.EventClockExpired:
		fmt.Println("* time is up")
	}
}
