package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/internal/util"
	"github.com/teranos/notify/logger"
	"github.com/teranos/notify/notification"
	"github.com/teranos/notify/sym"
)

// MsgCmd represents the msg (notification) command
var MsgCmd = &cobra.Command{
	Use:   "msg",
	Short: sym.Notify + " Send, list and mark notifications",
	Long: sym.Notify + ` msg - user notifications

Examples:
  notify msg type add reminder text
  notify msg send --user 1 --user 2 --type reminder --payload '{"text":"hi"}'
  notify msg ls --user 1 --unread
  notify msg read 1 <msg-id>
  notify msg read 1 --all --namespace course-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var msgTypeCmd = &cobra.Command{
	Use:   "type",
	Short: "Manage message types",
}

var msgTypeAddCmd = &cobra.Command{
	Use:   "add <name> <renderer>",
	Short: "Register or update a message type",
	Args:  cobra.ExactArgs(2),
	RunE:  runMsgTypeAdd,
}

var msgTypeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List message types",
	RunE:  runMsgTypeLs,
}

var msgSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Store a message and publish it to users",
	RunE:  runMsgSend,
}

var msgLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a user's visible notifications",
	RunE:  runMsgLs,
}

var msgReadCmd = &cobra.Command{
	Use:   "read <user> [msg-id]",
	Short: "Mark one or all of a user's notifications read",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMsgRead,
}

type msgSendOptions struct {
	users            []int64
	msgType          string
	payload          string
	namespace        string
	priority         string
	from             int64
	deliverAfter     time.Duration
	expiresIn        time.Duration
	expiresAfterRead time.Duration
}

var sendFlags msgSendOptions

var lsFlags struct {
	user      int64
	unread    bool
	read      bool
	namespace string
	msgType   string
	limit     int
	offset    int
	format    string
}

var readFlags struct {
	all       bool
	unread    bool
	namespace string
}

func init() {
	f := msgSendCmd.Flags()
	f.Int64SliceVar(&sendFlags.users, "user", nil, "Recipient user ID (repeatable)")
	f.StringVar(&sendFlags.msgType, "type", "", "Message type")
	f.StringVar(&sendFlags.payload, "payload", "{}", "JSON object handed to the renderer")
	f.StringVar(&sendFlags.namespace, "namespace", "", "Namespace for grouping (e.g. course-42)")
	f.StringVar(&sendFlags.priority, "priority", "none", "none, low, medium, high or urgent")
	f.Int64Var(&sendFlags.from, "from", 0, "Sending user ID (0 = system)")
	f.DurationVar(&sendFlags.deliverAfter, "deliver-after", 0, "Hide the message for this long")
	f.DurationVar(&sendFlags.expiresIn, "expires-in", 0, "Expire the message after this long")
	f.DurationVar(&sendFlags.expiresAfterRead, "expires-after-read", 0, "Remove a user's copy this long after they read it")
	_ = msgSendCmd.MarkFlagRequired("user")
	_ = msgSendCmd.MarkFlagRequired("type")

	f = msgLsCmd.Flags()
	f.Int64Var(&lsFlags.user, "user", 0, "User ID")
	f.BoolVar(&lsFlags.unread, "unread", false, "Only unread notifications")
	f.BoolVar(&lsFlags.read, "read", false, "Only read notifications")
	f.StringVar(&lsFlags.namespace, "namespace", "", "Only this namespace")
	f.StringVar(&lsFlags.msgType, "type", "", "Only this message type")
	f.IntVar(&lsFlags.limit, "limit", 0, "Maximum rows (capped by notifications.max_list_size)")
	f.IntVar(&lsFlags.offset, "offset", 0, "Rows to skip")
	f.StringVar(&lsFlags.format, "format", "", "Print as yaml or json instead of a table")
	_ = msgLsCmd.MarkFlagRequired("user")
	msgLsCmd.MarkFlagsMutuallyExclusive("read", "unread")

	f = msgReadCmd.Flags()
	f.BoolVar(&readFlags.all, "all", false, "Mark every unread notification")
	f.BoolVar(&readFlags.unread, "unread", false, "Mark unread instead of read")
	f.StringVar(&readFlags.namespace, "namespace", "", "With --all, only this namespace")

	msgTypeCmd.AddCommand(msgTypeAddCmd)
	msgTypeCmd.AddCommand(msgTypeLsCmd)
	MsgCmd.AddCommand(msgTypeCmd)
	MsgCmd.AddCommand(msgSendCmd)
	MsgCmd.AddCommand(msgLsCmd)
	MsgCmd.AddCommand(msgReadCmd)
}

func openNotificationStore() (*notification.Store, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	database, err := openDatabase("")
	if err != nil {
		return nil, nil, err
	}
	store := notification.NewStore(database, notificationStoreConfig(cfg), logger.Logger)
	return store, func() { database.Close() }, nil
}

func runMsgTypeAdd(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openNotificationStore()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.SaveType(cmd.Context(), &notification.Type{Name: args[0], Renderer: args[1]}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s type %s saved\n", sym.Notify, args[0])
	return nil
}

func runMsgTypeLs(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openNotificationStore()
	if err != nil {
		return err
	}
	defer closeFn()

	types, err := store.ListTypes(cmd.Context())
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Name", "Renderer"}}
	for _, t := range types {
		data = append(data, []string{t.Name, t.Renderer})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runMsgSend(cmd *cobra.Command, args []string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(sendFlags.payload), &payload); err != nil {
		return errors.NewInvalidRequestError("--payload must be a JSON object")
	}
	priority, err := notification.ParsePriority(sendFlags.priority)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m := &notification.Message{
		Namespace: sendFlags.namespace,
		Type:      sendFlags.msgType,
		Payload:   payload,
		Priority:  priority,
	}
	if sendFlags.from != 0 {
		m.FromUserID = util.Ptr(sendFlags.from)
	}
	if sendFlags.deliverAfter > 0 {
		m.DeliverNoEarlierThan = util.Ptr(now.Add(sendFlags.deliverAfter))
	}
	if sendFlags.expiresIn > 0 {
		m.ExpiresAt = util.Ptr(now.Add(sendFlags.expiresIn))
	}
	if sendFlags.expiresAfterRead > 0 {
		m.ExpiresSecsAfterRead = util.Ptr(int(sendFlags.expiresAfterRead / time.Second))
	}

	store, closeFn, err := openNotificationStore()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.SaveMessage(cmd.Context(), m); err != nil {
		return err
	}
	created, err := store.Publish(cmd.Context(), m.ID, sendFlags.users)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s message %s published to %d user(s)\n", sym.Notify, m.ID, created)
	return nil
}

func runMsgLs(cmd *cobra.Command, args []string) error {
	filters := notification.Filters{
		Namespace: lsFlags.namespace,
		Type:      lsFlags.msgType,
		Limit:     lsFlags.limit,
		Offset:    lsFlags.offset,
	}
	switch {
	case lsFlags.unread:
		filters.Read = util.Ptr(false)
	case lsFlags.read:
		filters.Read = util.Ptr(true)
	}

	store, closeFn, err := openNotificationStore()
	if err != nil {
		return err
	}
	defer closeFn()

	list, err := store.ListUserNotifications(cmd.Context(), lsFlags.user, filters)
	if err != nil {
		return err
	}
	if lsFlags.format != "" {
		return writeFormatted(cmd.OutOrStdout(), lsFlags.format, list)
	}

	total, err := store.CountUserNotifications(cmd.Context(), lsFlags.user, filters)
	if err != nil {
		return err
	}
	if total == 0 {
		pterm.Info.Println("No notifications")
		return nil
	}

	data := pterm.TableData{{"Message", "Type", "Namespace", "Priority", "Created", "Read"}}
	for _, un := range list {
		read := ""
		if un.IsRead() {
			read = un.ReadAt.UTC().Format(time.RFC3339)
		}
		data = append(data, []string{
			un.Message.ID,
			un.Message.Type,
			un.Message.Namespace,
			un.Message.Priority.String(),
			un.Created.UTC().Format(time.RFC3339),
			read,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("showing %d of %d", len(list), total)
	return nil
}

func runMsgRead(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.NewInvalidRequestError("user ID %q is not a number", args[0])
	}
	if readFlags.all == (len(args) == 2) {
		return errors.NewInvalidRequestError("give either a message ID or --all")
	}

	store, closeFn, err := openNotificationStore()
	if err != nil {
		return err
	}
	defer closeFn()

	if readFlags.all {
		n, err := store.MarkAllRead(cmd.Context(), userID, readFlags.namespace)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d notification(s) marked read\n", sym.Notify, n)
		return nil
	}

	if err := store.MarkRead(cmd.Context(), userID, args[1], !readFlags.unread); err != nil {
		return err
	}
	state := "read"
	if readFlags.unread {
		state = "unread"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s marked %s\n", sym.Notify, args[1], state)
	return nil
}
