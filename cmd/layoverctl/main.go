package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/layover/internal/auth"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/config"
	"github.com/matheus3301/layover/internal/lock"
	"github.com/matheus3301/layover/internal/logging"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/profile"
	"github.com/matheus3301/layover/internal/redisrt"
	"github.com/matheus3301/layover/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "status" {
		cmdStatus(name, *jsonFlag)
		return
	}

	env, err := open(name)
	if err != nil {
		fatal(err)
	}
	defer env.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "user":
		if len(args) < 3 || args[1] != "add" {
			usage("layoverctl user add <name> [email]")
		}
		email := ""
		if len(args) > 3 {
			email = args[3]
		}
		cmdUserAdd(ctx, env, args[2], email, *jsonFlag)
	case "request":
		if len(args) < 3 {
			usage("layoverctl request <from-user> <to-user>")
		}
		cmdRequest(ctx, env, args[1], args[2], *jsonFlag)
	case "requests":
		if len(args) < 2 {
			usage("layoverctl requests <user>")
		}
		cmdRequests(ctx, env, args[1], *jsonFlag)
	case "accept", "decline", "cancel":
		if len(args) < 3 {
			usage("layoverctl " + args[0] + " <user> <request-id>")
		}
		cmdAnswer(ctx, env, args[0], args[1], args[2], *jsonFlag)
	case "send":
		if len(args) < 4 {
			usage("layoverctl send <from-user> <conversation> <text>")
		}
		cmdSend(ctx, env, args[1], args[2], strings.Join(args[3:], " "), *jsonFlag)
	case "notifications":
		if len(args) < 2 {
			usage("layoverctl notifications <user>")
		}
		cmdNotifications(ctx, env, args[1], *jsonFlag)
	case "read-all":
		if len(args) < 2 {
			usage("layoverctl read-all <user>")
		}
		cmdReadAll(ctx, env, args[1])
	case "block":
		if len(args) < 3 {
			usage("layoverctl block <user> <blocked-user>")
		}
		cmdBlock(ctx, env, args[1], args[2])
	case "token":
		if len(args) < 2 {
			usage("layoverctl token <user> [--ttl 24h] [--qr]")
		}
		cmdToken(env, args[1], args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: layoverctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show whether a client holds the profile")
	fmt.Fprintln(os.Stderr, "  user add <name> [email]         Create a user")
	fmt.Fprintln(os.Stderr, "  request <from> <to>             Send a travel request")
	fmt.Fprintln(os.Stderr, "  requests <user>                 List pending requests")
	fmt.Fprintln(os.Stderr, "  accept <user> <req>             Accept a request and open a conversation")
	fmt.Fprintln(os.Stderr, "  decline <user> <req>            Decline a request")
	fmt.Fprintln(os.Stderr, "  cancel <user> <req>             Withdraw a sent request")
	fmt.Fprintln(os.Stderr, "  send <from> <conv> <text>       Send a message")
	fmt.Fprintln(os.Stderr, "  notifications <user>            List notifications")
	fmt.Fprintln(os.Stderr, "  read-all <user>                 Mark all notifications read")
	fmt.Fprintln(os.Stderr, "  block <user> <blocked>          Block a user")
	fmt.Fprintln(os.Stderr, "  token <user> [--ttl d] [--qr]   Issue a sign-in token")
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

// env is the slice of a client the commands write through. It does not take
// the profile lock; sqlite serializes writers.
type env struct {
	settings *config.Profile
	db       *store.DB
	records  *store.Records
	agg      *notify.Aggregator
	logger   *zap.Logger
	closers  []func() error
}

func open(name string) (*env, error) {
	settings, err := config.LoadProfile(profile.SettingsPath(name))
	if err != nil {
		return nil, err
	}
	if err := profile.EnsureDir(name); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Path:    profile.LogPath(name, "layoverctl"),
		Profile: name,
		Binary:  "layoverctl",
		Level:   zapcore.InfoLevel,
	})
	if err != nil {
		return nil, err
	}

	dbPath := settings.Store.Path
	if dbPath == "" {
		dbPath = profile.DBPath(name)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	e := &env{settings: settings, db: db, logger: logger, closers: []func() error{db.Close}}
	if _, err := db.Migrate(); err != nil {
		e.close()
		return nil, err
	}

	// Without redis, changes stay in this process and a running client
	// picks them up on its next reload.
	var pub backend.ChangePublisher
	if settings.Realtime.Driver == config.RealtimeRedis {
		t, err := redisrt.Dial(context.Background(), settings.Realtime.RedisAddr, settings.Realtime.RedisPrefix, logger)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, t.Close)
		pub = t
	}

	e.records, err = store.NewRecords(db, pub, logger)
	if err != nil {
		e.close()
		return nil, err
	}
	e.agg = notify.NewAggregator(e.records, notify.Options{
		MaxPerUser: settings.Notifications.MaxPerUser,
		PageSize:   settings.Notifications.PageSize,
	}, logger)
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func (e *env) insert(ctx context.Context, actor, table string, rec backend.Row) backend.Row {
	row, err := e.records.Insert(backend.WithUser(ctx, actor), table, rec)
	if err != nil {
		fatal(err)
	}
	return row
}

func (e *env) actions(userID string) *chat.Actions {
	return chat.NewActions(chat.ActionsDeps{Store: e.records, Logger: e.logger}, userID)
}

func cmdStatus(name string, jsonOut bool) {
	out := struct {
		Profile string `json:"profile"`
		Running bool   `json:"running"`
		Binary  string `json:"binary,omitempty"`
		PID     int    `json:"pid,omitempty"`
		Since   string `json:"since,omitempty"`
	}{Profile: name}

	l, err := lock.Acquire(profile.Dir(name), "layoverctl")
	var held *lock.LockHeldError
	switch {
	case errors.As(err, &held):
		out.Running = true
		out.Binary = held.Holder.Binary
		out.PID = held.Holder.PID
		if !held.Holder.Since.IsZero() {
			out.Since = held.Holder.Since.Format(time.RFC3339)
		}
	case err != nil:
		fatal(err)
	default:
		_ = l.Release()
	}

	if jsonOut {
		printJSON(out)
		return
	}
	fmt.Printf("Profile: %s\n", out.Profile)
	if !out.Running {
		fmt.Println("Client:  not running")
		return
	}
	fmt.Printf("Client:  %s (PID %d)\n", out.Binary, out.PID)
	if out.Since != "" {
		fmt.Printf("Since:   %s\n", out.Since)
	}
}

func cmdUserAdd(ctx context.Context, e *env, name, email string, jsonOut bool) {
	row := e.insert(ctx, "", chat.TableUsers, backend.Row{"name": name, "email": email})
	if jsonOut {
		printJSON(map[string]string{"id": row.String("id"), "name": name})
		return
	}
	fmt.Println(row.String("id"))
}

func cmdRequest(ctx context.Context, e *env, from, to string, jsonOut bool) {
	row := e.insert(ctx, from, chat.TableMatches, backend.Row{"from_user": from, "to_user": to, "status": string(chat.StatusPending)})
	if jsonOut {
		printJSON(map[string]string{"id": row.String("id"), "from_user": from, "to_user": to})
		return
	}
	fmt.Println(row.String("id"))
}

func cmdRequests(ctx context.Context, e *env, userID string, jsonOut bool) {
	incoming, outgoing, err := e.actions(userID).Requests(ctx)
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		type item struct {
			ID        string `json:"id"`
			Direction string `json:"direction"`
			FromUser  string `json:"from_user"`
			ToUser    string `json:"to_user"`
			Name      string `json:"name"`
			TripID    string `json:"trip_id,omitempty"`
		}
		out := make([]item, 0, len(incoming)+len(outgoing))
		for _, r := range incoming {
			out = append(out, item{r.ID, "incoming", r.FromUser, r.ToUser, r.Name, r.TripID})
		}
		for _, r := range outgoing {
			out = append(out, item{r.ID, "outgoing", r.FromUser, r.ToUser, r.Name, r.TripID})
		}
		printJSON(out)
		return
	}

	if len(incoming)+len(outgoing) == 0 {
		fmt.Println("No pending requests.")
		return
	}
	for _, r := range incoming {
		fmt.Printf("<- %s  from %s\n", r.ID, r.Name)
	}
	for _, r := range outgoing {
		fmt.Printf("-> %s  to %s\n", r.ID, r.Name)
	}
}

func cmdAnswer(ctx context.Context, e *env, verb, userID, requestID string, jsonOut bool) {
	acts := e.actions(userID)
	switch verb {
	case "accept":
		conv, err := acts.AcceptRequest(ctx, requestID)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			printJSON(map[string]string{"id": conv.ID, "request_id": requestID, "counterpart_id": conv.CounterpartID})
			return
		}
		fmt.Println(conv.ID)
	case "decline":
		if err := acts.DeclineRequest(ctx, requestID); err != nil {
			fatal(err)
		}
	default:
		if err := acts.CancelRequest(ctx, requestID); err != nil {
			fatal(err)
		}
	}
}

func cmdSend(ctx context.Context, e *env, from, conversationID, text string, jsonOut bool) {
	m, err := e.actions(from).Send(ctx, conversationID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		printJSON(map[string]any{
			"id":          m.ID,
			"sender_id":   m.SenderID,
			"receiver_id": m.ReceiverID,
			"text":        m.Text,
			"timestamp":   m.Timestamp.Format(time.RFC3339Nano),
		})
		return
	}
	fmt.Println(m.ID)
}

func cmdNotifications(ctx context.Context, e *env, userID string, jsonOut bool) {
	items, err := e.agg.List(backend.WithUser(ctx, userID), userID)
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		type item struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Title     string `json:"title"`
			Message   string `json:"message"`
			Link      string `json:"link,omitempty"`
			Read      bool   `json:"read"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]item, 0, len(items))
		for _, n := range items {
			out = append(out, item{
				ID:        n.ID,
				Type:      string(n.Type),
				Title:     n.Title,
				Message:   n.Message,
				Link:      n.Link,
				Read:      n.Read,
				CreatedAt: n.CreatedAt.Format(time.RFC3339),
			})
		}
		printJSON(out)
		return
	}

	if len(items) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range items {
		mark := "*"
		if n.Read {
			mark = " "
		}
		fmt.Printf("%s %s  %-8s %s: %s\n", mark, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Type, n.Title, n.Message)
	}
}

func cmdReadAll(ctx context.Context, e *env, userID string) {
	if err := e.agg.MarkAllRead(backend.WithUser(ctx, userID), userID); err != nil {
		fatal(err)
	}
}

func cmdBlock(ctx context.Context, e *env, userID, blocked string) {
	if err := e.actions(userID).Block(backend.WithUser(ctx, userID), blocked); err != nil {
		fatal(err)
	}
}

func cmdToken(e *env, userID string, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	qr := fs.Bool("qr", false, "print the token as a QR code")
	_ = fs.Parse(args)

	token, err := auth.Issue([]byte(e.settings.Auth.Secret), backend.User{ID: userID}, *ttl)
	if err != nil {
		fatal(err)
	}
	if *qr {
		if err := writeQR(os.Stdout, token); err != nil {
			fatal(err)
		}
		return
	}
	fmt.Println(token)
}
