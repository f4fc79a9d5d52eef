package harness

import (
	"fmt"
	"strings"
)

const pythonPrelude = `import json
import sys
from typing import *
`

const pythonListNode = `

class ListNode:
    def __init__(self, val=0, next=None):
        self.val = val
        self.next = next
`

const pythonHelpers = `

def _arena_build_list(values):
    dummy = ListNode(0)
    tail = dummy
    for v in values:
        tail.next = ListNode(v)
        tail = tail.next
    return dummy.next


def _arena_format(value):
    if isinstance(value, bool):
        return "true" if value else "false"
    if isinstance(value, ListNode):
        items = []
        while value is not None:
            items.append(_arena_format(value.val))
            value = value.next
        return "[" + ",".join(items) + "]"
    if isinstance(value, (list, tuple)):
        return "[" + ",".join(_arena_format(v) for v in value) + "]"
    return str(value)
`

func emitPython(source string, c *Callable, family Family, hasListNode bool) (string, error) {
	var b strings.Builder
	b.WriteString(pythonPrelude)
	if !hasListNode {
		b.WriteString(pythonListNode)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimRight(source, "\n"))
	b.WriteString("\n")
	b.WriteString(pythonHelpers)

	b.WriteString("\n\nif __name__ == \"__main__\":\n")
	b.WriteString("    _arena_args = json.loads(\"[\" + sys.stdin.readline().strip() + \"]\")\n")
	fmt.Fprintf(&b, "    if len(_arena_args) != %d:\n", family.Arity())
	fmt.Fprintf(&b, "        raise SystemExit(\"expected %d argument(s), got %%d\" %% len(_arena_args))\n", family.Arity())
	if family == LinkedList {
		b.WriteString("    _arena_args[0] = _arena_build_list(_arena_args[0])\n")
	}

	call := c.Name
	if c.Receiver != "" {
		call = c.Receiver + "()." + c.Name
	}
	fmt.Fprintf(&b, "    _arena_result = %s(*_arena_args)\n", call)
	b.WriteString("    if _arena_result is None:\n")
	if family == LinkedList {
		b.WriteString("        _arena_result = []\n")
	} else {
		b.WriteString("        _arena_result = _arena_args[0]\n")
	}
	b.WriteString("    print(_arena_format(_arena_result))\n")
	return b.String(), nil
}
