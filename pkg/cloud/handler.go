package cloud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/odvcencio/extbridge/pkg/messaging"
)

// Channel is the relay channel the chunker serves.
const Channel = "cloud"

const defaultRequestTimeout = 30 * time.Second

type request struct {
	What    string          `json:"what"`
	DataKey string          `json:"datakey"`
	Data    json.RawMessage `json:"data"`
	Options json.RawMessage `json:"options"`
}

// Handler serves the cloud channel. Push replies with the store error text
// or null; pull replies with the entry or null.
func (c *Chunker) Handler(ctx context.Context) messaging.Handler {
	return func(msg json.RawMessage, _ *messaging.Sender, respond messaging.Responder) messaging.Result {
		var req request
		if !messaging.Decode(msg, &req) {
			return messaging.Declined()
		}

		switch req.What {
		case "cloudGetOptions":
			return messaging.Handled(c.GetOptions())

		case "cloudSetOptions":
			var u OptionsUpdate
			if len(req.Options) == 0 || req.Options[0] != '{' || json.Unmarshal(req.Options, &u) != nil {
				return messaging.Handled(nil)
			}
			return messaging.Handled(c.SetOptions(u))

		case "cloudPush":
			data := req.Data
			if len(data) == 0 {
				data = json.RawMessage("null")
			}
			go func() {
				ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
				defer cancel()
				if err := c.Push(ctx, req.DataKey, data); err != nil {
					respond(err.Error())
					return
				}
				respond(nil)
			}()
			return messaging.HandledAsync()

		case "cloudPull":
			go func() {
				ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
				defer cancel()
				entry, err := c.Pull(ctx, req.DataKey)
				if err != nil || entry == nil {
					respond(nil)
					return
				}
				respond(entry)
			}()
			return messaging.HandledAsync()
		}
		return messaging.Declined()
	}
}
