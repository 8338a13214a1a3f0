package storage

import (
	"encoding/json"

	"github.com/odvcencio/extbridge/pkg/messaging"
)

// Channel is the relay channel the cache storage area is served on.
const Channel = "cacheStorage"

type cacheRequest struct {
	What  string                     `json:"what"`
	Keys  json.RawMessage            `json:"keys"`
	Items map[string]json.RawMessage `json:"items"`
}

// cacheKeys is the decoded "keys" argument: null for everything, a string, an
// array of strings, or an object whose values are defaults.
type cacheKeys struct {
	all      bool
	keys     []string
	defaults map[string]json.RawMessage
}

func parseCacheKeys(raw json.RawMessage) (cacheKeys, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return cacheKeys{all: true}, true
	}
	var one string
	if json.Unmarshal(raw, &one) == nil {
		return cacheKeys{keys: []string{one}}, true
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		return cacheKeys{keys: append([]string{}, many...)}, true
	}
	var defaults map[string]json.RawMessage
	if json.Unmarshal(raw, &defaults) == nil && defaults != nil {
		ck := cacheKeys{keys: make([]string, 0, len(defaults)), defaults: defaults}
		for key := range defaults {
			ck.keys = append(ck.keys, key)
		}
		return ck, true
	}
	return cacheKeys{}, false
}

func (ck cacheKeys) list() []string {
	if ck.all {
		return nil
	}
	return ck.keys
}

// Handler serves the cache storage channel. get replies with the found
// entries merged over any defaults, or null on failure. Writes reply null
// once committed. getBytesInUse replies with a byte count.
func (s *Store) Handler() messaging.Handler {
	return func(msg json.RawMessage, _ *messaging.Sender, _ messaging.Responder) messaging.Result {
		var req cacheRequest
		if !messaging.Decode(msg, &req) {
			return messaging.Declined()
		}

		switch req.What {
		case "get":
			ck, ok := parseCacheKeys(req.Keys)
			if !ok {
				return messaging.Handled(map[string]json.RawMessage{})
			}
			found, err := s.CacheGet(ck.list())
			if err != nil {
				s.logger.Debug().Err(err).Msg("cache storage get failed")
				return messaging.Handled(nil)
			}
			if ck.defaults == nil {
				return messaging.Handled(found)
			}
			merged := make(map[string]json.RawMessage, len(ck.defaults))
			for key, value := range ck.defaults {
				merged[key] = value
			}
			for key, value := range found {
				merged[key] = value
			}
			return messaging.Handled(merged)

		case "set":
			if err := s.CacheSet(req.Items); err != nil {
				s.logger.Debug().Err(err).Msg("cache storage set failed")
			}
			return messaging.Handled(nil)

		case "remove":
			ck, ok := parseCacheKeys(req.Keys)
			if ok && !ck.all {
				if err := s.CacheRemove(ck.keys); err != nil {
					s.logger.Debug().Err(err).Msg("cache storage remove failed")
				}
			}
			return messaging.Handled(nil)

		case "clear":
			if err := s.CacheClear(); err != nil {
				s.logger.Debug().Err(err).Msg("cache storage clear failed")
			}
			return messaging.Handled(nil)

		case "getBytesInUse":
			ck, ok := parseCacheKeys(req.Keys)
			if !ok {
				return messaging.Handled(0)
			}
			n, err := s.CacheBytesInUse(ck.list())
			if err != nil {
				s.logger.Debug().Err(err).Msg("cache storage size failed")
				return messaging.Handled(0)
			}
			return messaging.Handled(n)
		}
		return messaging.Declined()
	}
}
