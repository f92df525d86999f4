// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package pluginv1

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/paneplug/paneplug/pkg/plugin"
)

// Field names used in encoded structs.
const (
	fieldKind         = "kind"
	fieldText         = "text"
	fieldPress        = "press"
	fieldChildren     = "children"
	fieldName         = "name"
	fieldVersion      = "version"
	fieldSubscription = "subscription"
	fieldCommands     = "commands"
)

// Description is the result of Describe.
type Description struct {
	Name    string
	Version string
	// Subscription is the key of the current subscription, or "" for none.
	Subscription string
}

// Struct encodes d.
func (d Description) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:         structpb.NewStringValue(d.Name),
		fieldVersion:      structpb.NewStringValue(d.Version),
		fieldSubscription: structpb.NewStringValue(d.Subscription),
	}}
}

// DecodeDescription decodes the result of Describe. Missing fields are empty.
func DecodeDescription(s *structpb.Struct) Description {
	f := s.GetFields()
	return Description{
		Name:         f[fieldName].GetStringValue(),
		Version:      f[fieldVersion].GetStringValue(),
		Subscription: f[fieldSubscription].GetStringValue(),
	}
}

// EncodeCommands encodes the command ids returned by Update.
func EncodeCommands(ids []uint64) *structpb.Struct {
	values := make([]*structpb.Value, len(ids))
	for i, id := range ids {
		values[i] = structpb.NewNumberValue(float64(id))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldCommands: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// DecodeCommands decodes the command ids returned by Update.
func DecodeCommands(s *structpb.Struct) ([]uint64, error) {
	values := s.GetFields()[fieldCommands].GetListValue().GetValues()
	ids := make([]uint64, 0, len(values))
	for i, v := range values {
		id, err := handle(v)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EncodeNode encodes a render tree. press is called once for every enabled
// button and returns the handle that stands in for its message.
func EncodeNode(n plugin.Node, press func(plugin.Envelope) uint64) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldKind: structpb.NewStringValue(n.Kind.String()),
	}
	if n.Text != "" {
		fields[fieldText] = structpb.NewStringValue(n.Text)
	}
	if !n.OnPress.IsZero() {
		fields[fieldPress] = structpb.NewNumberValue(float64(press(n.OnPress)))
	}
	if len(n.Children) > 0 {
		children := make([]*structpb.Value, len(n.Children))
		for i, c := range n.Children {
			children[i] = structpb.NewStructValue(EncodeNode(c, press))
		}
		fields[fieldChildren] = structpb.NewListValue(&structpb.ListValue{Values: children})
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeNode decodes a render tree. message turns a button handle back into
// an envelope the host can deliver.
func DecodeNode(s *structpb.Struct, message func(uint64) plugin.Envelope) (plugin.Node, error) {
	if s == nil {
		return plugin.Node{}, fmt.Errorf("node is missing")
	}
	f := s.GetFields()

	kind, ok := plugin.ParseKind(f[fieldKind].GetStringValue())
	if !ok {
		return plugin.Node{}, fmt.Errorf("unknown node kind %q", f[fieldKind].GetStringValue())
	}
	n := plugin.Node{Kind: kind, Text: f[fieldText].GetStringValue()}

	if v, ok := f[fieldPress]; ok {
		h, err := handle(v)
		if err != nil {
			return plugin.Node{}, fmt.Errorf("press: %w", err)
		}
		if h != 0 {
			n.OnPress = message(h)
		}
	}

	for i, c := range f[fieldChildren].GetListValue().GetValues() {
		child, err := DecodeNode(c.GetStructValue(), message)
		if err != nil {
			return plugin.Node{}, fmt.Errorf("child %d: %w", i, err)
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func handle(v *structpb.Value) (uint64, error) {
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("handle is not a number")
	}
	if nv.NumberValue < 0 || nv.NumberValue != float64(uint64(nv.NumberValue)) {
		return 0, fmt.Errorf("handle %v is not a whole non-negative number", nv.NumberValue)
	}
	return uint64(nv.NumberValue), nil
}
