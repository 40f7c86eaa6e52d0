// File: basp/remote_message.go
// Author: momentics <momentics@gmail.com>
//
// Deserialization and ordered delivery of inbound actor messages. Workers and
// the inline path share this routine.

package basp

import (
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/control"
	"go.uber.org/zap"
)

// deliveryContext holds everything a delivery needs and nothing that changes
// per connection state, so workers can run it off the reactor thread.
type deliveryContext struct {
	sys     api.System
	proxies api.ProxyRegistry
	codec   *Codec
	queue   *MessageQueue
	log     *zap.Logger
	metrics *control.MetricsRegistry
}

// deliver decodes payload and completes id in the queue. Any failure drops
// id so later messages are not held back.
func (c *deliveryContext) deliver(id uint64, lastHop api.NodeID, hdr Header, payload []byte) {
	receiver, env, err := c.decode(lastHop, hdr, payload)
	if err != nil || receiver == nil {
		if err != nil {
			c.log.Debug("dropping actor message",
				zap.Uint64("mid", hdr.OperationData), zap.String("from", string(lastHop)), zap.Error(err))
		}
		c.count("basp.drops")
		c.queue.Drop(id)
		return
	}
	c.count("basp.deliveries")
	c.queue.Push(id, receiver, env)
}

func (c *deliveryContext) decode(lastHop api.NodeID, hdr Header, payload []byte) (api.Actor, *api.Envelope, error) {
	var p actorMessagePayload
	if err := c.codec.Unmarshal(payload, &p); err != nil {
		return nil, nil, err
	}
	if p.DstID == 0 {
		c.log.Debug("actor message without receiver", zap.String("from", string(lastHop)))
		return nil, nil, nil
	}
	receiver := c.sys.Registry().Get(api.ActorID(p.DstID))
	if receiver == nil {
		c.log.Debug("no local receiver", zap.Uint64("dst", p.DstID), zap.String("from", string(lastHop)))
		return nil, nil, nil
	}
	env := &api.Envelope{
		Sender:    c.actor(p.SrcNode, p.SrcID),
		MessageID: hdr.OperationData,
	}
	if len(p.Stages) > 0 {
		env.Stages = make([]api.Actor, 0, len(p.Stages))
		for _, s := range p.Stages {
			if a := c.actor(s.Node, s.ID); a != nil {
				env.Stages = append(env.Stages, a)
			}
		}
	}
	if len(p.Content) > 0 {
		if err := c.codec.Unmarshal(p.Content, &env.Content); err != nil {
			return nil, nil, err
		}
	}
	return receiver, env, nil
}

// actor maps a wire address to a local actor or a proxy.
func (c *deliveryContext) actor(node string, id uint64) api.Actor {
	if id == 0 {
		return nil
	}
	if api.NodeID(node) == c.sys.Node() {
		return c.sys.Registry().Get(api.ActorID(id))
	}
	return c.proxies.GetOrPut(api.NodeID(node), api.ActorID(id))
}

func (c *deliveryContext) count(key string) {
	if c.metrics != nil {
		c.metrics.Add(key, 1)
	}
}
