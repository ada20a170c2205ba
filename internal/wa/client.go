package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"shopbot/internal/checkout"
	"shopbot/internal/metrics"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
	Metrics   *metrics.Metrics
}

// Client wraps the WhatsMeow client and associated dependencies. It renders
// checkout messages to plain WhatsApp text, so it doubles as the engine's
// Notifier.
type Client struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	processor MessageProcessor
}

// MessageProcessor handles inbound WhatsApp messages.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, evt *events.Message)
}

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client:  client,
		logger:  logger.With("component", "wa"),
		metrics: cfg.Metrics,
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// Start connects the client and handles login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// SetMessageProcessor registers message processor callback.
func (c *Client) SetMessageProcessor(processor MessageProcessor) {
	c.processor = processor
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil || evt.Info.IsFromMe {
		return
	}

	if c.metrics != nil {
		c.metrics.WAIncomingMessages.WithLabelValues(messageType(msg)).Inc()
	}
	c.logger.Debug("message received", "from", evt.Info.Sender.String(), "type", messageType(msg))

	if c.processor != nil {
		go c.processor.ProcessMessage(context.Background(), evt)
	}
}

func messageType(msg *waProto.Message) string {
	switch {
	case msg.GetConversation() != "" || msg.ExtendedTextMessage != nil:
		return "text"
	case msg.LocationMessage != nil:
		return "location"
	case msg.ListResponseMessage != nil || msg.ButtonsResponseMessage != nil:
		return "choice"
	case msg.ImageMessage != nil:
		return "image"
	case msg.AudioMessage != nil:
		return "audio"
	default:
		return "other"
	}
}

// Text extracts the plain text body of a message, if any.
func Text(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if msg.ExtendedTextMessage != nil {
		return msg.GetExtendedTextMessage().GetText()
	}
	return ""
}

// ChoiceID extracts the selected option id from interactive replies.
func ChoiceID(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if msg.ListResponseMessage != nil {
		return msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
	}
	if msg.ButtonsResponseMessage != nil {
		return msg.GetButtonsResponseMessage().GetSelectedButtonID()
	}
	return ""
}

// Location extracts a shared location from a message, or nil.
func Location(msg *waProto.Message) *checkout.SharedLocation {
	if msg == nil || msg.LocationMessage == nil {
		return nil
	}
	loc := msg.GetLocationMessage()
	return &checkout.SharedLocation{
		Latitude:  loc.GetDegreesLatitude(),
		Longitude: loc.GetDegreesLongitude(),
		Name:      loc.GetName(),
		Address:   loc.GetAddress(),
	}
}

// Notify renders a checkout message and sends it to the customer. The
// customer id is the bare WhatsApp number.
func (c *Client) Notify(ctx context.Context, businessID, customerID string, msg checkout.Message) error {
	jid := types.NewJID(customerID, types.DefaultUserServer)
	return c.SendText(ctx, jid, Render(msg))
}

// SendText sends a plain text message to the specified JID.
func (c *Client) SendText(ctx context.Context, to types.JID, text string) error {
	message := &waProto.Message{
		Conversation: proto.String(text),
	}
	if _, err := c.client.SendMessage(ctx, to, message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if c.metrics != nil {
		c.metrics.WAOutgoingMessages.WithLabelValues("text").Inc()
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
