package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/usecase"
	"unsubscribe-agent/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 10

var errExit = errors.New("exit")

type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	usecase *usecase.Service
	in      io.Reader
	out     io.Writer

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	email    string
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return newInterface(params, os.Stdin, os.Stdout)
}

func newInterface(params Params, in io.Reader, out io.Writer) *Interface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Interface{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase: params.Usecase,
		in:      in,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
		email:   params.Config.AppConfig.UserEmail,
	}
}

// Start reads commands until EOF, "exit" or Stop.
func (i *Interface) Start() error {
	i.printBanner()
	i.printHelp()

	scanner := bufio.NewScanner(i.in)

	for i.ctx.Err() == nil {
		fmt.Fprint(i.out, "\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				break
			}

			i.logger.Error("Command error", zap.Error(err))
			fmt.Fprintf(i.out, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

// Stop cancels any attempt in flight. Safe to call more than once.
func (i *Interface) Stop() error {
	i.stopOnce.Do(func() {
		i.logger.Info("Stopping console interface...")
		i.cancel()
	})

	return nil
}

func (i *Interface) handleCommand(input string) error {
	fields := strings.Fields(input)

	switch strings.ToLower(fields[0]) {
	case "help", "h":
		i.printHelp()

		return nil
	case "exit", "quit", "q":
		fmt.Fprintln(i.out, "Shutting down...")

		return errExit
	case "email":
		if len(fields) < 2 {
			fmt.Fprintf(i.out, "Current email: %q\n", i.email)

			return nil
		}

		i.email = fields[1]
		fmt.Fprintf(i.out, "Email set to %s\n", i.email)

		return nil
	case "history":
		limit := defaultHistoryLimit

		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return fmt.Errorf("history limit %q: %w", fields[1], err)
			}

			limit = n
		}

		return i.printHistory(limit)
	default:
		return i.unsubscribe(fields[0])
	}
}

func (i *Interface) unsubscribe(target string) error {
	if i.email == "" {
		return errors.New("no email set, use: email you@example.com")
	}

	fmt.Fprintf(i.out, "\nUnsubscribing %s from %s\n", i.email, target)

	results, err := i.usecase.EmailActions.Unsubscribe(i.ctx, i.email, []entity.EmailTarget{{UnsubscribeURL: target}})
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Success {
			fmt.Fprintf(i.out, "OK: %s\n", r.Reason)
		} else {
			fmt.Fprintf(i.out, "FAILED: %s\n", r.Reason)
		}
	}

	return nil
}

func (i *Interface) printHistory(limit int) error {
	records, err := i.usecase.History.Recent(i.ctx, limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(i.out, "No attempts recorded yet.")

		return nil
	}

	for _, r := range records {
		status := "FAILED"
		if r.Success {
			status = "OK"
		}

		fmt.Fprintf(i.out, "%s  %-6s  %s  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), status, r.TargetURL, r.Reason)
	}

	return nil
}

func (i *Interface) printBanner() {
	fmt.Fprintln(i.out, `
+---------------------------------------------------+
|                 Unsubscribe Agent                 |
|  Drives unsubscribe pages in a headless browser   |
+---------------------------------------------------+`)
}

func (i *Interface) printHelp() {
	fmt.Fprintln(i.out, `
Available commands:
  <url>            - Unsubscribe using the page at <url>
  email [address]  - Show or set the subscriber email address
  history [n]      - Show the last n attempts (default 10)
  help, h          - Show this help message
  exit, quit, q    - Exit the application`)
}
