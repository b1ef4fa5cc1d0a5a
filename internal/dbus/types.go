package dbus

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/store"
)

// DBusNotification represents an incoming D-Bus Notify call.
// It contains the raw parameters from the org.freedesktop.Notifications.Notify method.
type DBusNotification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// markup strips body markup down to text.
var markup = bluemonday.StrictPolicy()

// StripMarkup removes tags from a body and decodes entities.
func StripMarkup(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return body
	}
	return html.UnescapeString(markup.Sanitize(body))
}

// maxLinks bounds the links taken from one body.
const maxLinks = 3

// ExtractLinks returns the http, https and mailto anchors of a body in
// document order, without duplicates.
func ExtractLinks(body string) []model.Link {
	if !strings.Contains(strings.ToLower(body), "<a") {
		return nil
	}

	var (
		links []model.Link
		cur   *model.Link
		text  strings.Builder
	)
	seen := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; an unclosed anchor is dropped.
			return links
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				if string(key) == "href" && allowedLink(string(val)) {
					cur = &model.Link{Href: strings.TrimSpace(string(val))}
					text.Reset()
				}
			}
		case html.TextToken:
			if cur != nil {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "a" || cur == nil {
				continue
			}
			cur.Text = strings.Join(strings.Fields(text.String()), " ")
			if !seen[cur.Href] {
				seen[cur.Href] = true
				links = append(links, *cur)
			}
			cur = nil
			if len(links) == maxLinks {
				return links
			}
		}
	}
}

func allowedLink(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "mailto":
		return u.Opaque != ""
	default:
		return false
	}
}

// ParsedActions converts the D-Bus action array to structured form.
// D-Bus actions are passed as alternating key/label pairs; a trailing key
// without a label is dropped.
func (n *DBusNotification) ParsedActions() []model.Action {
	actions := make([]model.Action, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		actions = append(actions, model.Action{
			Key:   n.Actions[i],
			Label: n.Actions[i+1],
		})
	}
	return actions
}

// ParsedHints extracts the hints the daemon acts on. Unknown string hints
// are kept in Extra.
func (n *DBusNotification) ParsedHints() model.Hints {
	h := model.DefaultHints()
	for key, v := range n.Hints {
		switch key {
		case "urgency":
			if u, ok := intValue(v); ok && u >= 0 && u <= 2 {
				h.Urgency = model.Urgency(u)
			}
		case "category":
			h.Category = stringValue(v)
		case "desktop-entry":
			h.DesktopEntry = stringValue(v)
		case "image-path", "image_path":
			h.ImagePath = stringValue(v)
		case "image-data", "image_data", "icon_data":
			if img, err := rawImage(v); err == nil {
				h.ImageData = img
			}
		case "sound-file":
			h.SoundFile = stringValue(v)
		case "sound-name":
			h.SoundName = stringValue(v)
		case "suppress-sound":
			h.SuppressSound = boolValue(v)
		case "resident":
			h.Resident = boolValue(v)
		case "transient":
			h.Transient = boolValue(v)
		case "value":
			if p, ok := intValue(v); ok {
				h.Progress = p
			}
		case "x-dunst-stack-tag", "x-canonical-private-synchronous", "stack-tag":
			if h.StackTag == "" {
				h.StackTag = stringValue(v)
			}
		case "fgcolor":
			h.Foreground = stringValue(v)
		case "bgcolor":
			h.Background = stringValue(v)
		case "frcolor", "hlcolor":
			if h.Frame == "" {
				h.Frame = stringValue(v)
			}
		default:
			if s, ok := v.Value().(string); ok {
				if h.Extra == nil {
					h.Extra = make(map[string]string)
				}
				h.Extra[key] = s
			}
		}
	}
	return h
}

// ToSpec converts the call into a store request. Body markup is stripped
// after its links are taken out.
func (n *DBusNotification) ToSpec() store.Spec {
	return store.Spec{
		ReplacesID: n.ReplacesID,
		AppName:    n.AppName,
		Summary:    n.Summary,
		Body:       StripMarkup(n.Body),
		Icon:       n.AppIcon,
		Actions:    n.ParsedActions(),
		Links:      ExtractLinks(n.Body),
		Hints:      n.ParsedHints(),
		Timeout:    model.TimeoutFromExpire(n.ExpireTimeout),
	}
}

// notificationFromBody decodes the arguments of a Notify method call.
func notificationFromBody(body []any) (*DBusNotification, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("malformed Notify call: %d arguments", len(body))
	}
	n := &DBusNotification{}
	var ok bool
	if n.AppName, ok = body[0].(string); !ok {
		return nil, fmt.Errorf("invalid app_name type %T", body[0])
	}
	if n.ReplacesID, ok = body[1].(uint32); !ok {
		return nil, fmt.Errorf("invalid replaces_id type %T", body[1])
	}
	if n.AppIcon, ok = body[2].(string); !ok {
		return nil, fmt.Errorf("invalid app_icon type %T", body[2])
	}
	if n.Summary, ok = body[3].(string); !ok {
		return nil, fmt.Errorf("invalid summary type %T", body[3])
	}
	if n.Body, ok = body[4].(string); !ok {
		return nil, fmt.Errorf("invalid body type %T", body[4])
	}
	if actions, ok := body[5].([]string); ok {
		n.Actions = actions
	}
	if hints, ok := body[6].(map[string]dbus.Variant); ok {
		n.Hints = hints
	}
	if timeout, ok := body[7].(int32); ok {
		n.ExpireTimeout = timeout
	}
	return n, nil
}

func stringValue(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

func intValue(v dbus.Variant) (int, bool) {
	switch val := v.Value().(type) {
	case byte:
		return int(val), true
	case int16:
		return int(val), true
	case uint16:
		return int(val), true
	case int32:
		return int(val), true
	case uint32:
		return int(val), true
	case int64:
		return int(val), true
	case uint64:
		return int(val), true
	case string:
		i, err := strconv.Atoi(val)
		return i, err == nil
	}
	return 0, false
}

// boolValue accepts the loose encodings senders use for flags.
func boolValue(v dbus.Variant) bool {
	switch val := v.Value().(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	}
	if i, ok := intValue(v); ok {
		return i != 0
	}
	return false
}

// rawImage decodes an (iiibiiay) image-data structure.
func rawImage(v dbus.Variant) (*model.RawImage, error) {
	fields, ok := v.Value().([]any)
	if !ok || len(fields) != 7 {
		return nil, fmt.Errorf("image data is %s, want (iiibiiay)", v.Signature())
	}
	var ints [5]int32
	for i, idx := range []int{0, 1, 2, 4, 5} {
		n, ok := fields[idx].(int32)
		if !ok {
			return nil, fmt.Errorf("image data field %d is %T", idx, fields[idx])
		}
		ints[i] = n
	}
	alpha, ok := fields[3].(bool)
	if !ok {
		return nil, fmt.Errorf("image data field 3 is %T", fields[3])
	}
	data, ok := fields[6].([]byte)
	if !ok {
		return nil, fmt.Errorf("image data field 6 is %T", fields[6])
	}
	return &model.RawImage{
		Width:         int(ints[0]),
		Height:        int(ints[1]),
		RowStride:     int(ints[2]),
		HasAlpha:      alpha,
		BitsPerSample: int(ints[3]),
		Channels:      int(ints[4]),
		Data:          data,
	}, nil
}

// ServerCapabilities lists the capabilities advertised by glintd.
var ServerCapabilities = []string{
	"actions",
	"body",
	"body-hyperlinks", // shown as buttons
	"body-markup",     // accepted and stripped to text
	"icon-static",
	"persistence",
	"sound",
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// DefaultServerInfo returns the default server information.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "glintd",
		Vendor:      "glint",
		Version:     "dev",
		SpecVersion: "1.2",
	}
}
