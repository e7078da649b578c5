/*
Package template resolves the mapping templates that routing rules use
to build a derived event's payload from the source event.

Placeholders are ${path} where path is a dotted identifier resolved
against the source event's data, context, and a small set of computed
values the dispatcher supplies (current timestamp, source event name).

A mapping value that is exactly one placeholder carries the referenced
value with its type intact, so whole nested structures can be lifted
into the derived event:

	mapping:
	  status: "${status}"              # typed copy
	  summary: "run ${run_id} done"    # textual expansion
	  original: "${result}"            # whole nested map

Pass-through mapping (copy the entire source payload) is handled by
the dispatcher as a special case and does not involve this package.
*/
package template
