package analytics

import (
	"encoding/json"
	"strings"

	"github.com/louisbranch/vitrine/internal/services/site/consent"
)

// PageInjector decides, for one server-rendered page, which scripts the
// document may reference. It never makes a network request itself.
type PageInjector struct {
	record  consent.Record
	decided bool
	scripts []Script
}

// NewPageInjector evaluates scripts against the visitor's decision.
func NewPageInjector(record consent.Record, decided bool, scripts ...Script) *PageInjector {
	return &PageInjector{record: record, decided: decided, scripts: scripts}
}

// Scripts returns the scripts whose category is allowed, in order.
func (p *PageInjector) Scripts() []Script {
	if p == nil || !p.decided {
		return nil
	}
	var out []Script
	for _, script := range p.scripts {
		if p.record.Allows(script.Category) {
			out = append(out, script)
		}
	}
	return out
}

// Commands returns the consent commands the page queues before any script:
// the default, plus an update when the visitor has decided.
func (p *PageInjector) Commands() []Command {
	commands := []Command{DefaultConsent()}
	if p != nil && p.decided {
		commands = append(commands, UpdateFor(p.record, true))
	}
	return commands
}

// InlineBootstrap returns the inline script body that defines the data layer
// and queues Commands. The output is safe inside a <script> element.
func (p *PageInjector) InlineBootstrap() string {
	var b strings.Builder
	b.WriteString("window.dataLayer=window.dataLayer||[];")
	b.WriteString("function gtag(){dataLayer.push(arguments);}")
	for _, command := range p.Commands() {
		params, _ := json.Marshal(command.Params)
		b.WriteString("gtag(")
		b.Write(jsonString(command.Command))
		b.WriteString(",")
		b.Write(jsonString(command.Action))
		b.WriteString(",")
		b.Write(params)
		b.WriteString(");")
	}
	return b.String()
}

// jsonString encodes s; encoding/json escapes <, > and & so the result
// cannot close the surrounding script element.
func jsonString(s string) []byte {
	data, _ := json.Marshal(s)
	return data
}
