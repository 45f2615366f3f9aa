package service

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/llm"
)

// memberCall is everything needed to ask one member.
type memberCall struct {
	crewID string
	tier   tier.CostTier
	model  string
	config *crew.Config
}

// batch is a group of members answered by one model.
type batch struct {
	model   string
	members []memberCall
}

func (b batch) ids() []string {
	out := make([]string, len(b.members))
	for i, m := range b.members {
		out[i] = m.crewID
	}
	return out
}

// sectionMarker matches a delimiter line such as "[[crew:lieutenant_worf]]".
var sectionMarker = regexp.MustCompile(`(?m)^[ \t]*\[\[crew:([A-Za-z0-9_\-]+)\]\][ \t]*\r?$`)

// planBatches groups calls by model in first-appearance order and splits
// groups larger than maxSize.
func planBatches(calls []memberCall, maxSize int) []batch {
	if maxSize < 1 {
		maxSize = 1
	}
	var order []string
	byModel := make(map[string][]memberCall)
	for _, c := range calls {
		if _, ok := byModel[c.model]; !ok {
			order = append(order, c.model)
		}
		byModel[c.model] = append(byModel[c.model], c)
	}

	var out []batch
	for _, model := range order {
		group := byModel[model]
		for start := 0; start < len(group); start += maxSize {
			end := min(start+maxSize, len(group))
			out = append(out, batch{model: model, members: group[start:end]})
		}
	}
	return out
}

// individualMessages builds the prompt for a single member.
func individualMessages(c memberCall, userRequest string, hints map[string]string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: c.config.SystemPrompt},
		{Role: "user", Content: userContent(userRequest, hints)},
	}
}

// batchMessages builds one prompt that asks the model to answer as every
// member of b, each in its own delimited section.
func batchMessages(b batch, userRequest string, hints map[string]string) []llm.Message {
	var sys strings.Builder
	sys.WriteString("You are answering the same request on behalf of several crew members.\n")
	sys.WriteString("Write one section per member, in the order listed. Start each section with a line containing exactly the member's marker and nothing else.\n")
	sys.WriteString("Do not add text outside the sections.\n\n")
	for _, m := range b.members {
		fmt.Fprintf(&sys, "[[crew:%s]]\n%s\n\n", m.crewID, strings.TrimSpace(m.config.SystemPrompt))
	}
	return []llm.Message{
		{Role: "system", Content: strings.TrimRight(sys.String(), "\n")},
		{Role: "user", Content: userContent(userRequest, hints)},
	}
}

func userContent(userRequest string, hints map[string]string) string {
	if len(hints) == 0 {
		return userRequest
	}
	keys := make([]string, 0, len(hints))
	for k := range hints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(userRequest)
	b.WriteString("\n\nContext:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, hints[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// batchParams derives the sampling parameters of a combined call.
func batchParams(b batch) (temperature float64, maxTokens int) {
	temperature = b.members[0].config.Temperature
	for _, m := range b.members {
		temperature = min(temperature, m.config.Temperature)
		maxTokens += m.config.MaxTokens
	}
	return temperature, maxTokens
}

// splitBatchResponse demultiplexes a combined answer into per-member
// sections. Sections for ids that were not expected are dropped; the first
// section of a repeated id wins. A non-nil ParseError lists the expected ids
// that produced no usable section, and the returned map still holds the
// sections that were found.
func splitBatchResponse(model, content string, expected []string) (map[string]string, *execution.ParseError) {
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}

	sections := make(map[string]string, len(expected))
	var found []string
	locs := sectionMarker.FindAllStringSubmatchIndex(content, -1)
	for i, loc := range locs {
		id := content[loc[2]:loc[3]]
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if !want[id] {
			continue
		}
		if _, dup := sections[id]; dup {
			continue
		}
		body := strings.TrimSpace(content[loc[1]:end])
		if body == "" {
			continue
		}
		sections[id] = body
		found = append(found, id)
	}

	var missing []string
	for _, id := range expected {
		if _, ok := sections[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return sections, nil
	}

	reason := "sections missing or empty"
	if len(locs) == 0 {
		reason = "no section delimiters found"
	}
	return sections, &execution.ParseError{
		Model:    model,
		Expected: slices.Clone(expected),
		Found:    found,
		Missing:  missing,
		Reason:   reason,
	}
}

// splitUsage divides n evenly over parts; the first n%parts shares get one
// extra token.
func splitUsage(n int64, parts int) []int64 {
	out := make([]int64, parts)
	if parts == 0 {
		return out
	}
	base, rem := n/int64(parts), n%int64(parts)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}
