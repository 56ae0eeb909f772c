// Command collabctl drives a collab server from the terminal.
//
//	collabctl create <name>
//	collabctl watch <project>
//	collabctl comment <project> <text> [-m user-id ...]
//	collabctl edit <project>
//
// edit reads lines from stdin into the project description and autosaves
// after a quiet period. A line reading /save saves immediately. The quiet
// period is autosave_quiet from --config when given, unless --quiet is set.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Collab/internal/autosave"
	"github.com/dkeye/Collab/internal/client"
	"github.com/dkeye/Collab/internal/config"
	"github.com/dkeye/Collab/internal/domain"
)

type options struct {
	config   string
	server   string
	userID   int64
	username string
	mentions []int64
	quiet    time.Duration
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var opts options
	fs := pflag.NewFlagSet("collabctl", pflag.ExitOnError)
	fs.StringVarP(&opts.server, "server", "s", "http://localhost:8080", "server base URL")
	fs.Int64VarP(&opts.userID, "user-id", "u", 1, "user id for the debug session")
	fs.StringVarP(&opts.username, "username", "n", os.Getenv("USER"), "username for the debug session")
	fs.Int64SliceVarP(&opts.mentions, "mention", "m", nil, "user id to notify (comment only, repeatable)")
	fs.StringVarP(&opts.config, "config", "c", "", "server config file to take autosave_quiet from (edit only)")
	fs.DurationVar(&opts.quiet, "quiet", autosave.DefaultQuiet, "autosave quiet period (edit only)")
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: collabctl [flags] create|watch|comment|edit <arg> ...")
		fs.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(opts.server)
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}
	if _, err := c.Login(ctx, domain.UserID(opts.userID), opts.username); err != nil {
		log.Fatal().Err(err).Msg("login")
	}

	switch args[0] {
	case "create":
		err = runCreate(ctx, c, strings.Join(args[1:], " "))
	case "watch":
		err = withProject(args[1], func(id domain.ProjectID) error { return runWatch(ctx, c, id, os.Stdout) })
	case "comment":
		err = withProject(args[1], func(id domain.ProjectID) error {
			return runComment(ctx, c, id, strings.Join(args[2:], " "), opts.mentions)
		})
	case "edit":
		err = withProject(args[1], func(id domain.ProjectID) error {
			quiet, err := resolveQuiet(opts.config, fs.Changed("quiet"), opts.quiet)
			if err != nil {
				return err
			}
			return runEdit(ctx, c, id, os.Stdin, quiet)
		})
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Str("cmd", args[0]).Msg("failed")
	}
}

func withProject(arg string, fn func(domain.ProjectID) error) error {
	id, err := domain.ParseProjectID(arg)
	if err != nil {
		return fmt.Errorf("project %q: %w", arg, err)
	}
	return fn(id)
}

func runCreate(ctx context.Context, c *client.Client, name string) error {
	p, err := c.CreateProject(ctx, name)
	if err != nil {
		return err
	}
	fmt.Println(p.ID)
	return nil
}

// runWatch prints every envelope of the project room as one JSON line.
func runWatch(ctx context.Context, c *client.Client, id domain.ProjectID, out io.Writer) error {
	rc, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := rc.Join(id); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for {
		env, err := rc.Next(ctx)
		if err != nil {
			return err
		}
		if err := enc.Encode(env); err != nil {
			return err
		}
	}
}

// runComment persists the comment, then relays it to whoever is watching.
func runComment(ctx context.Context, c *client.Client, id domain.ProjectID, text string, mentions []int64) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	to := make([]domain.UserID, 0, len(mentions))
	for _, m := range mentions {
		to = append(to, domain.UserID(m))
	}
	cm, err := c.PostComment(ctx, id, body, to)
	if err != nil {
		return err
	}

	rc, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := rc.Join(id); err != nil {
		return err
	}
	ack, err := rc.Next(ctx)
	if err != nil {
		return err
	}
	if ack.Error != "" {
		return fmt.Errorf("join: %s", ack.Error)
	}
	live, err := json.Marshal(cm)
	if err != nil {
		return err
	}
	if err := rc.SendComment(id, live); err != nil {
		return err
	}
	log.Info().Int64("comment_id", cm.ID).Str("project_id", id.String()).Msg("comment posted")
	return nil
}

// resolveQuiet picks the autosave quiet period. An explicit --quiet wins,
// then the config file, then the flag default.
func resolveQuiet(configPath string, flagSet bool, flagValue time.Duration) (time.Duration, error) {
	if flagSet || configPath == "" {
		return flagValue, nil
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg.AutosaveQuiet, nil
}

type document struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// runEdit appends stdin lines to the description text.
func runEdit(ctx context.Context, c *client.Client, id domain.ProjectID, in io.Reader, quiet time.Duration) error {
	doc := document{Type: "doc"}
	if d, err := c.Description(ctx, id); err == nil {
		_ = json.Unmarshal(d.Content, &doc)
	}

	co := autosave.New(id, c, autosave.Options{
		Quiet:   quiet,
		Timeout: 10 * time.Second,
		OnStatus: func(s autosave.Status) {
			log.Info().Str("project_id", id.String()).Str("status", s.String()).Msg("autosave")
		},
	})
	initial, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	co.Load(initial)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		if line == "/save" {
			if err := co.Save(ctx); err != nil {
				log.Error().Err(err).Msg("save failed, edits kept locally")
			}
			continue
		}
		if doc.Text != "" {
			doc.Text += "\n"
		}
		doc.Text += line
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		co.Edit(b)
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := co.Close(closeCtx); err != nil {
		return err
	}
	return sc.Err()
}
