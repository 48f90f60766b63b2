package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
)

const shellHelp = `Commands:
  ls [-s]        List entries (-s prints secrets)
  show <id>      Print one entry with its secret
  add <title>    Add an entry
  rm <id>        Remove an entry
  lock           End the session
  unlock         Start a new session
  status         Show session state
  exit           Lock and leave
`

// Shell keeps one session open and runs commands against it until exit.
// The session monitor locks it on expiry and, with signature binding, when
// the signer no longer reports the session identity.
func Shell(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.Unlock(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var src session.AddressSource
	if cfg.Bound() {
		src = s.Signer
	}
	go s.KeySafe.Sessions().Monitor(ctx, src, cfg.Session.MonitorInterval)
	log.Debug().Str("identity", s.Identity).Dur("interval", cfg.Session.MonitorInterval).Msg("session monitor started")

	fmt.Printf("Unlocked %s. Type 'help' for commands.\n", s.Identity)
	for ctx.Err() == nil {
		fmt.Fprint(os.Stderr, "keysafe> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if s.exec(ctx, args) {
			return
		}
	}
}

// exec runs one shell command and reports whether the shell should exit
func (s *Session) exec(ctx context.Context, args []string) bool {
	ks := s.KeySafe

	switch args[0] {
	case "help", "?":
		fmt.Print(shellHelp)

	case "ls":
		entries, err := ks.ListEntries(ctx)
		if err != nil {
			PrintError(err)
			break
		}
		printEntries(entries, len(args) > 1 && (args[1] == "-s" || args[1] == "--show"))
		ClearEntries(entries)

	case "show":
		if len(args) != 2 {
			fmt.Println("Usage: show <id>")
			break
		}
		entries, err := ks.ListEntries(ctx)
		if err != nil {
			PrintError(err)
			break
		}
		if e, err := ResolveEntry(entries, args[1]); err != nil {
			PrintError(err)
		} else {
			printEntry(e, true)
		}
		ClearEntries(entries)

	case "add":
		if len(args) < 2 {
			fmt.Println("Usage: add <title>")
			break
		}
		s.shellAdd(ctx, strings.Join(args[1:], " "))

	case "rm":
		if len(args) != 2 {
			fmt.Println("Usage: rm <id>")
			break
		}
		entries, err := ks.ListEntries(ctx)
		if err != nil {
			PrintError(err)
			break
		}
		ClearEntries(entries)
		e, err := ResolveEntry(entries, args[1])
		if err != nil {
			PrintError(err)
			break
		}
		if err := ks.DeleteEntry(ctx, e.ID); err != nil {
			PrintError(err)
			break
		}
		fmt.Printf("✓ Removed %s (%s)\n", e.Title, short(e.ID))

	case "lock":
		ks.Lock()
		fmt.Println("Locked")

	case "unlock":
		if err := s.TryUnlock(ctx); err != nil {
			PrintError(err)
			break
		}
		fmt.Printf("Unlocked %s\n", s.Identity)

	case "status":
		state := ks.Sessions().State()
		info, ok := ks.Sessions().Info()
		if state == session.Locked || !ok {
			fmt.Printf("Session: %s\n", session.Locked)
			break
		}
		fmt.Printf("Session: %s (%s)\n", state, info.Identity)
		fmt.Printf("  idle until:  %s\n", info.IdleDeadline.Format(time.Kitchen))
		fmt.Printf("  expires at:  %s\n", info.ExpiresAt.Format(time.Kitchen))
		if n, err := ks.CountEntries(ctx); err == nil {
			fmt.Printf("  entries:     %d\n", n)
		}

	case "exit", "quit":
		ks.Lock()
		return true

	default:
		fmt.Printf("Unknown command: %s (try 'help')\n", args[0])
	}
	return false
}

func (s *Session) shellAdd(ctx context.Context, title string) {
	username := readLine("username: ")
	website := readLine("website: ")

	secret, err := core.ReadPasswordConfirm("entry secret: ")
	if err != nil {
		PrintError(err)
		return
	}
	defer crypto.ClearBytes(secret)

	id, err := s.KeySafe.AddEntry(ctx, title, username, secret, website)
	if err != nil {
		PrintError(err)
		return
	}
	fmt.Printf("✓ Added %s (%s)\n", title, short(id))
}

func readLine(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
