package harness

import (
	"fmt"
	"strings"
)

const cppPrelude = `#include <bits/stdc++.h>
using namespace std;
`

const cppListNode = `
struct ListNode {
    int val;
    ListNode *next;
    ListNode() : val(0), next(nullptr) {}
    ListNode(int x) : val(x), next(nullptr) {}
    ListNode(int x, ListNode *next) : val(x), next(next) {}
};
`

const cppHelpers = `
static string arenaFormat(int v) { return to_string(v); }
static string arenaFormat(long long v) { return to_string(v); }
static string arenaFormat(bool v) { return v ? "true" : "false"; }
static string arenaFormat(const string& v) { return v; }
static string arenaFormat(ListNode* head) {
    string out = "[";
    for (ListNode* p = head; p != nullptr; p = p->next) {
        if (p != head) out += ",";
        out += to_string(p->val);
    }
    return out + "]";
}
template <class T> static string arenaFormat(const T& v) {
    ostringstream os;
    os << v;
    return os.str();
}
template <class T> static string arenaFormat(const vector<T>& v) {
    string out = "[";
    for (size_t i = 0; i < v.size(); ++i) {
        if (i) out += ",";
        out += arenaFormat(v[i]);
    }
    return out + "]";
}
template <class T> static vector<T> arenaParseList(const string& text) {
    vector<T> out;
    string body = text;
    size_t l = body.find('['), r = body.rfind(']');
    if (l != string::npos && r != string::npos && r > l) body = body.substr(l + 1, r - l - 1);
    stringstream ss(body);
    string item;
    while (getline(ss, item, ',')) {
        stringstream is(item);
        T v;
        if (is >> v) out.push_back(v);
    }
    return out;
}
static ListNode* arenaBuildList(const vector<int>& values) {
    ListNode dummy(0);
    ListNode* tail = &dummy;
    for (int v : values) {
        tail->next = new ListNode(v);
        tail = tail->next;
    }
    return dummy.next;
}
static void arenaSplitArgs(const string& line, string& list, string& scalar) {
    size_t r = line.rfind(']');
    list = r == string::npos ? line : line.substr(0, r + 1);
    scalar = r == string::npos ? "" : line.substr(r + 1);
    size_t comma = scalar.find(',');
    if (comma != string::npos) scalar = scalar.substr(comma + 1);
}
`

func emitCpp(source string, c *Callable, family Family, hasListNode bool) (string, error) {
	var b strings.Builder
	b.WriteString(cppPrelude)
	if !hasListNode {
		b.WriteString(cppListNode)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(source, "\n"))
	b.WriteString("\n")
	b.WriteString(cppHelpers)

	b.WriteString("\nint main() {\n")
	b.WriteString("    string line;\n")
	b.WriteString("    getline(cin, line);\n")

	first := c.Params[0]
	firstType := cppValueType(first.Type)
	switch family {
	case LinkedList:
		if !strings.Contains(firstType, "ListNode") {
			return "", fmt.Errorf("parameter %s must be ListNode*, got %q", first.Name, first.Type)
		}
		b.WriteString("    ListNode* arg0 = arenaBuildList(arenaParseList<int>(line));\n")
	case SingleArray:
		elem, ok := cppVectorElem(firstType)
		if !ok {
			return "", fmt.Errorf("parameter %s must be a vector, got %q", first.Name, first.Type)
		}
		fmt.Fprintf(&b, "    %s arg0 = arenaParseList<%s>(line);\n", firstType, elem)
	case TwoArgument:
		elem, ok := cppVectorElem(firstType)
		if !ok {
			return "", fmt.Errorf("parameter %s must be a vector, got %q", first.Name, first.Type)
		}
		second := c.Params[1]
		secondType := cppValueType(second.Type)
		if secondType == "" || strings.Contains(secondType, "vector") || strings.Contains(secondType, "*") {
			return "", fmt.Errorf("parameter %s must be a scalar, got %q", second.Name, second.Type)
		}
		b.WriteString("    string arenaList, arenaScalar;\n")
		b.WriteString("    arenaSplitArgs(line, arenaList, arenaScalar);\n")
		fmt.Fprintf(&b, "    %s arg0 = arenaParseList<%s>(arenaList);\n", firstType, elem)
		fmt.Fprintf(&b, "    %s arg1{};\n", secondType)
		b.WriteString("    { stringstream is(arenaScalar); is >> arg1; }\n")
	}

	call := c.Name + "(" + argList(family) + ")"
	if c.Receiver != "" {
		fmt.Fprintf(&b, "    %s arenaSolution;\n", c.Receiver)
		call = "arenaSolution." + call
	}
	if cppValueType(c.ReturnType) == "void" {
		fmt.Fprintf(&b, "    %s;\n", call)
		b.WriteString("    cout << arenaFormat(arg0) << \"\\n\";\n")
	} else {
		fmt.Fprintf(&b, "    auto result = %s;\n", call)
		b.WriteString("    cout << arenaFormat(result) << \"\\n\";\n")
	}
	b.WriteString("    return 0;\n}\n")
	return b.String(), nil
}

// cppValueType strips qualifiers so the type can declare a local variable.
func cppValueType(t string) string {
	t = strings.ReplaceAll(t, "&", "")
	t = stripWord(t, "const")
	t = stripWord(t, "volatile")
	return strings.ReplaceAll(strings.TrimSpace(t), "std::", "")
}

func cppVectorElem(t string) (string, bool) {
	if !strings.HasPrefix(t, "vector<") || !strings.HasSuffix(t, ">") {
		return "", false
	}
	return t[len("vector<") : len(t)-1], true
}

func argList(family Family) string {
	if family == TwoArgument {
		return "arg0, arg1"
	}
	return "arg0"
}
