// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"fmt"
)

// Node is one agent in the browser-facing network graph.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Data     NodeData `json:"data"`
	Position Position `json:"position"`
}

// NodeData carries the per-node display attributes.
type NodeData struct {
	Label         string   `json:"label"`
	Depth         int      `json:"depth"`
	Parent        string   `json:"parent,omitempty"`
	Children      []string `json:"children"`
	DropdownTools []string `json:"dropdown_tools"`
}

// Position is a layout hint; the browser runs its own layout pass.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Edge is one parent→child delegation link.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated"`
}

// AgentDetail is the inspector payload for one agent.
type AgentDetail struct {
	Instructions  string         `json:"instructions"`
	Command       string         `json:"command"`
	Class         string         `json:"class"`
	Function      map[string]any `json:"function,omitempty"`
	DropdownTools []string       `json:"dropdown_tools"`
}

// Topology is the full graph of one agent network.
type Topology struct {
	Nodes        []Node                 `json:"nodes"`
	Edges        []Edge                 `json:"edges"`
	AgentDetails map[string]AgentDetail `json:"agent_details"`
}

// Topology builds the graph of one network by walking its tools list
// from the front man down.
func (r *Registry) Topology(network string) (*Topology, error) {
	tools, err := r.tools(network)
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]map[string]any, len(tools))
	for _, tool := range tools {
		lookup[toolName(tool)] = tool
	}

	frontMan := findFrontMan(tools)
	if frontMan == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFrontMan, network)
	}

	topo := &Topology{
		Nodes:        []Node{},
		Edges:        []Edge{},
		AgentDetails: make(map[string]AgentDetail),
	}
	walkAgent(frontMan, "", 0, lookup, topo, map[string]bool{})
	return topo, nil
}

// Connectivity extracts the flat origin→tools adjacency of one network
// from its local definition, without asking the runtime.
func (r *Registry) Connectivity(network string) (map[string]any, error) {
	tools, err := r.tools(network)
	if err != nil {
		return nil, err
	}

	connectivity := make([]any, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		name := toolName(tool)
		if seen[name] {
			continue
		}
		seen[name] = true

		entry := map[string]any{"origin": name}
		if class, ok := tool["class"].(string); ok && class != "" {
			entry["origin"] = class
		}
		if children := toolChildren(tool); len(children) > 0 {
			entry["tools"] = children
		}
		connectivity = append(connectivity, entry)
	}
	return map[string]any{"connectivity": connectivity}, nil
}

// findFrontMan picks the entry agent: the first tool whose function has
// no parameters, else the first with no command. Declaration order
// breaks ties.
func findFrontMan(tools []map[string]any) map[string]any {
	for _, tool := range tools {
		if fn, ok := tool["function"].(map[string]any); ok {
			if _, hasParams := fn["parameters"]; !hasParams {
				return tool
			}
		}
		if cmd, _ := tool["command"].(string); cmd == "" {
			return tool
		}
	}
	return nil
}

// walkAgent appends one agent and recurses into its children. Children
// are referenced tools without a class; tools with a class are leaves
// listed on the parent instead of becoming graph nodes. seen guards
// against definition cycles.
func walkAgent(agent map[string]any, parent string, depth int, lookup map[string]map[string]any, topo *Topology, seen map[string]bool) {
	id := toolName(agent)
	if seen[id] {
		return
	}
	seen[id] = true

	var children, dropdown []string
	for _, ref := range toolChildren(agent) {
		child, ok := lookup[ref]
		if !ok {
			continue
		}
		if class, _ := child["class"].(string); class != "" {
			dropdown = append(dropdown, ref)
		} else {
			children = append(children, ref)
		}
	}

	topo.Nodes = append(topo.Nodes, Node{
		ID:   id,
		Type: "agent",
		Data: NodeData{
			Label:         id,
			Depth:         depth,
			Parent:        parent,
			Children:      children,
			DropdownTools: dropdown,
		},
		Position: Position{X: 100, Y: 100},
	})

	detail := AgentDetail{
		Instructions:  "No instructions",
		Command:       "No command",
		Class:         "No class",
		DropdownTools: dropdown,
	}
	if s, ok := agent["instructions"].(string); ok && s != "" {
		detail.Instructions = s
	}
	if s, ok := agent["command"].(string); ok && s != "" {
		detail.Command = s
	}
	if s, ok := agent["class"].(string); ok && s != "" {
		detail.Class = s
	}
	if fn, ok := agent["function"].(map[string]any); ok {
		detail.Function = fn
	}
	topo.AgentDetails[id] = detail

	for _, childID := range children {
		topo.Edges = append(topo.Edges, Edge{
			ID:       fmt.Sprintf("%s-%s", id, childID),
			Source:   id,
			Target:   childID,
			Animated: true,
		})
		walkAgent(lookup[childID], id, depth+1, lookup, topo, seen)
	}
}

func toolName(tool map[string]any) string {
	if name, ok := tool["name"].(string); ok && name != "" {
		return name
	}
	return "unknown_agent"
}

func toolChildren(tool map[string]any) []string {
	refs, ok := tool["tools"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if s, ok := ref.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
