package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/feedcache/internal/feed"
)

// Filter is a compiled boolean expression evaluated against cached feeds or their items.
//
// Feed expressions see: uri, title, description, lastupdated, items.count, items.newest.
// Item expressions see: title, uri, description, published, feed.uri, feed.title.
type Filter struct {
	rule    string
	program *vm.Program
}

var feedAttributes = []string{feed.AttrURI, feed.AttrTitle, feed.AttrDescription, feed.AttrLastUpdated}

// CompileFeed compiles rule for use with MatchFeed. An empty rule matches everything.
func CompileFeed(rule string) (*Filter, error) {
	return compile(rule, sampleFeedEnv())
}

// CompileItem compiles rule for use with MatchItem. An empty rule matches everything.
func CompileItem(rule string) (*Filter, error) {
	return compile(rule, itemEnv(nil, feed.Item{}))
}

func compile(rule string, env map[string]interface{}) (*Filter, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(rule, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", rule, err)
	}
	return &Filter{rule: rule, program: program}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.rule
}

// MatchFeed evaluates the filter against f.
func (f *Filter) MatchFeed(fd *feed.Feed) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	env, err := feedEnv(fd)
	if err != nil {
		return false, err
	}
	return f.run(env)
}

// MatchItem evaluates the filter against one item of parent.
func (f *Filter) MatchItem(parent *feed.Feed, item feed.Item) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	return f.run(itemEnv(parent, item))
}

func (f *Filter) run(env map[string]interface{}) (bool, error) {
	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.rule, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not return bool", f.rule)
	}
	return matched, nil
}

func feedEnv(fd *feed.Feed) (map[string]interface{}, error) {
	env := make(map[string]interface{}, len(feedAttributes)+1)
	for _, name := range feedAttributes {
		value, err := fd.Attribute(name)
		if err != nil {
			return nil, err
		}
		env[name] = value
	}
	var newest time.Time
	if first, ok := fd.ItemAt(0); ok {
		newest = first.PublishedAt()
	}
	env[feed.AttrItems] = map[string]interface{}{
		"count":  fd.Len(),
		"newest": newest,
	}
	return env, nil
}

func sampleFeedEnv() map[string]interface{} {
	return map[string]interface{}{
		feed.AttrURI:         "",
		feed.AttrTitle:       "",
		feed.AttrDescription: "",
		feed.AttrLastUpdated: time.Time{},
		feed.AttrItems: map[string]interface{}{
			"count":  0,
			"newest": time.Time{},
		},
	}
}

func itemEnv(parent *feed.Feed, item feed.Item) map[string]interface{} {
	parentEnv := map[string]interface{}{"uri": "", "title": ""}
	if parent != nil {
		parentEnv["uri"] = parent.Identity()
		parentEnv["title"] = parent.Title()
	}
	return map[string]interface{}{
		"title":       item.Title(),
		"uri":         item.URI(),
		"description": item.Description(""),
		"published":   item.PublishedAt(),
		"feed":        parentEnv,
	}
}
