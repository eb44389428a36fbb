package upstream

import (
	"context"

	"github.com/user/fleetdeck/internal/wire"
)

// Model config response layout, shared by the cascade and command variants.
const (
	modelFieldConfig = 1 // repeated message
	modelFieldLabel  = 1
	modelFieldName   = 2
)

// ModelConfig is one selectable model as exposed to team admins.
type ModelConfig struct {
	Label string `json:"label,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ModelList is the decoded model catalog for one surface.
type ModelList struct {
	CallMeta
	Models []ModelConfig `json:"models"`
	Raw    wire.Message  `json:"raw,omitempty"`
}

// GetCascadeModels lists the models available to the agent surface.
func (c *Client) GetCascadeModels(ctx context.Context, accountID string) (*ModelList, error) {
	res, err := c.invoke(ctx, epGetCascadeModels, accountID, func(token string) []byte {
		return wire.AppendString(nil, 6, token)
	})
	if err != nil {
		return nil, err
	}
	return modelList(res), nil
}

// GetCommandModels lists the models available to the command surface.
func (c *Client) GetCommandModels(ctx context.Context, accountID string) (*ModelList, error) {
	res, err := c.invoke(ctx, epGetCommandModels, accountID, func(token string) []byte {
		return wire.AppendString(nil, 1, token)
	})
	if err != nil {
		return nil, err
	}
	return modelList(res), nil
}

func modelList(res *Result) *ModelList {
	out := &ModelList{CallMeta: metaOf(res), Raw: res.Msg}
	if res.Msg == nil {
		return out
	}
	for _, v := range res.Msg.List(modelFieldConfig) {
		if v.Kind != wire.KindMessage {
			continue
		}
		var m ModelConfig
		if s, ok := v.Msg.String(modelFieldLabel); ok {
			m.Label = s
		}
		if s, ok := v.Msg.String(modelFieldName); ok {
			m.Name = s
		}
		out.Models = append(out.Models, m)
	}
	return out
}

// OrgControls is the per-team model allow list pushed by
// UpsertTeamOrgControls. Empty slices clear the corresponding restriction.
type OrgControls struct {
	TeamID          string   `json:"team_id"`
	ChatModels      []string `json:"chat_models,omitempty"`
	CommandModels   []string `json:"command_models,omitempty"`
	ExtensionModels []string `json:"extension_models,omitempty"`
}

// ControlsResult is the decoded outcome of an org controls upsert.
type ControlsResult struct {
	CallMeta
	Raw wire.Message `json:"raw,omitempty"`
}

// UpsertTeamOrgControls replaces the team's organizational model controls.
func (c *Client) UpsertTeamOrgControls(ctx context.Context, accountID string, controls OrgControls) (*ControlsResult, error) {
	if controls.TeamID == "" {
		return nil, &ValidationError{Msg: "team_id required"}
	}

	res, err := c.invoke(ctx, epUpsertTeamOrgControls, accountID, func(token string) []byte {
		var inner []byte
		inner = wire.AppendString(inner, 1, controls.TeamID)
		for _, label := range controls.ChatModels {
			inner = wire.AppendString(inner, 2, label)
		}
		for _, label := range controls.CommandModels {
			inner = wire.AppendString(inner, 3, label)
		}
		for _, label := range controls.ExtensionModels {
			inner = wire.AppendString(inner, 6, label)
		}
		var b []byte
		b = wire.AppendMessage(b, 1, inner)
		b = wire.AppendString(b, 2, token)
		return b
	})
	if err != nil {
		return nil, err
	}
	return &ControlsResult{CallMeta: metaOf(res), Raw: res.Msg}, nil
}
