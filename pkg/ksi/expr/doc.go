/*
Package expr implements the condition language used to gate routing
rules and observation subscriptions.

# Overview

Conditions are boolean expressions evaluated against a dispatched
event's data and context maps. The grammar is deliberately restricted:
no loops, no arbitrary method dispatch, no I/O. Evaluation is
synchronous, bounded-time, and total for any parseable input.

# Grammar

Descending precedence:

	or-expr     := and-expr ('or' and-expr)*
	and-expr    := not-expr ('and' not-expr)*
	not-expr    := 'not'? comparison
	comparison  := primary (cmp-op primary)?
	cmp-op      := '==' | '!=' | '<' | '<=' | '>' | '>=' | 'in' | 'not in'
	primary     := literal | identifier | call | '(' or-expr ')' | '[' list ']'

Literals are numbers, single- or double-quoted strings, and
true/false/none (null is accepted as a spelling of none).

# Identifiers

Identifiers are dotted paths resolved against the event's data map
first, falling back to the correlation context:

	status == 'success'
	result.latency_ms < 500
	_orchestration_id != none

Unresolved identifiers are null, not errors, so conditions can probe
for absent fields.

# Predicate functions

A dotted path may end in a call to one of a fixed allowlist of
predicate functions - never arbitrary reflective dispatch:

	agent_id.startswith('researcher')
	error.contains('timeout')
	tags.len() > 0

Built-ins: startswith, endswith, contains, lower, upper, len.

# Membership

The 'in' operator tests list membership, substring presence for
strings, and key presence for maps:

	status in ['success', 'partial']
	'fatal' in error
	not status in ['cancelled']

# Failure policy

Evaluator.Check applies a configurable policy when a condition cannot
be parsed or evaluated: FailOpen (the default, condition treated as
satisfied) or FailClosed. Either way the failure is logged; it is
never raised to the event producer.
*/
package expr
