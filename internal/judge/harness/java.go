package harness

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	javaImportLine  = regexp.MustCompile(`^\s*import\s+[\w.*]+\s*;\s*$`)
	javaPublicClass = regexp.MustCompile(`\bpublic\s+((?:final\s+|abstract\s+)*)(class|interface|enum|record)\b`)
)

const javaPrelude = `import java.io.*;
import java.util.*;
`

const javaListNode = `
class ListNode {
    int val;
    ListNode next;
    ListNode() {}
    ListNode(int val) { this.val = val; }
    ListNode(int val, ListNode next) { this.val = val; this.next = next; }
}
`

const javaHelpers = `
    static String[] arenaItems(String text) {
        int l = text.indexOf('['), r = text.lastIndexOf(']');
        String body = (l >= 0 && r > l) ? text.substring(l + 1, r) : text;
        body = body.trim();
        if (body.isEmpty()) return new String[0];
        String[] parts = body.split(",");
        for (int i = 0; i < parts.length; i++) parts[i] = parts[i].trim();
        return parts;
    }

    static int[] arenaParseInts(String text) {
        String[] items = arenaItems(text);
        int[] out = new int[items.length];
        for (int i = 0; i < items.length; i++) out[i] = Integer.parseInt(items[i]);
        return out;
    }

    static long[] arenaParseLongs(String text) {
        String[] items = arenaItems(text);
        long[] out = new long[items.length];
        for (int i = 0; i < items.length; i++) out[i] = Long.parseLong(items[i]);
        return out;
    }

    static List<Integer> arenaParseList(String text) {
        List<Integer> out = new ArrayList<>();
        for (int v : arenaParseInts(text)) out.add(v);
        return out;
    }

    static ListNode arenaBuildList(int[] values) {
        ListNode dummy = new ListNode(0);
        ListNode tail = dummy;
        for (int v : values) {
            tail.next = new ListNode(v);
            tail = tail.next;
        }
        return dummy.next;
    }

    static String arenaFormat(int v) { return Integer.toString(v); }

    static String arenaFormat(long v) { return Long.toString(v); }

    static String arenaFormat(boolean v) { return v ? "true" : "false"; }

    static String arenaFormat(int[] v) {
        StringBuilder sb = new StringBuilder("[");
        for (int i = 0; i < v.length; i++) {
            if (i > 0) sb.append(',');
            sb.append(v[i]);
        }
        return sb.append(']').toString();
    }

    static String arenaFormat(long[] v) {
        StringBuilder sb = new StringBuilder("[");
        for (int i = 0; i < v.length; i++) {
            if (i > 0) sb.append(',');
            sb.append(v[i]);
        }
        return sb.append(']').toString();
    }

    static String arenaFormat(ListNode head) {
        StringBuilder sb = new StringBuilder("[");
        for (ListNode p = head; p != null; p = p.next) {
            if (p != head) sb.append(',');
            sb.append(p.val);
        }
        return sb.append(']').toString();
    }

    static String arenaFormat(Collection<?> v) {
        StringBuilder sb = new StringBuilder("[");
        boolean first = true;
        for (Object item : v) {
            if (!first) sb.append(',');
            sb.append(arenaFormat(item));
            first = false;
        }
        return sb.append(']').toString();
    }

    static String arenaFormat(Object v) {
        if (v == null) return "null";
        if (v instanceof Boolean) return arenaFormat(((Boolean) v).booleanValue());
        if (v instanceof int[]) return arenaFormat((int[]) v);
        if (v instanceof long[]) return arenaFormat((long[]) v);
        if (v instanceof ListNode) return arenaFormat((ListNode) v);
        if (v instanceof Collection) return arenaFormat((Collection<?>) v);
        if (v instanceof Object[]) return arenaFormat(Arrays.asList((Object[]) v));
        return String.valueOf(v);
    }
`

// wrapJavaClass puts bare methods inside a Solution class, keeping imports at the top.
func wrapJavaClass(source string) string {
	var imports, body []string
	for _, line := range strings.Split(source, "\n") {
		if javaImportLine.MatchString(line) {
			imports = append(imports, strings.TrimSpace(line))
			continue
		}
		body = append(body, line)
	}
	var b strings.Builder
	for _, line := range imports {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("class Solution {\n")
	b.WriteString(strings.TrimRight(strings.Join(body, "\n"), "\n"))
	b.WriteString("\n}\n")
	return b.String()
}

func emitJava(source string, c *Callable, family Family, hasListNode bool) (string, error) {
	var imports, body []string
	for _, line := range strings.Split(source, "\n") {
		if javaImportLine.MatchString(line) {
			imports = append(imports, strings.TrimSpace(line))
			continue
		}
		body = append(body, line)
	}
	// Only Main may be public in a single-file program.
	candidate := javaPublicClass.ReplaceAllString(strings.Join(body, "\n"), "$1$2")

	var b strings.Builder
	b.WriteString(javaPrelude)
	for _, line := range imports {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(candidate))
	b.WriteString("\n")
	if !hasListNode {
		b.WriteString(javaListNode)
	}

	b.WriteString("\npublic class Main {")
	b.WriteString(javaHelpers)
	b.WriteString("\n    public static void main(String[] args) throws Exception {\n")
	b.WriteString("        BufferedReader reader = new BufferedReader(new InputStreamReader(System.in));\n")
	b.WriteString("        String line = reader.readLine();\n")
	b.WriteString("        if (line == null) line = \"\";\n")
	b.WriteString("        line = line.trim();\n")

	listSource := "line"
	if family == TwoArgument {
		b.WriteString("        int arenaSplit = line.lastIndexOf(']');\n")
		b.WriteString("        String arenaList = line.substring(0, arenaSplit + 1);\n")
		b.WriteString("        String arenaScalar = line.substring(arenaSplit + 1).trim();\n")
		b.WriteString("        if (arenaScalar.startsWith(\",\")) arenaScalar = arenaScalar.substring(1).trim();\n")
		listSource = "arenaList"
	}

	first := c.Params[0]
	firstType := strings.TrimSpace(first.Type)
	if family == LinkedList {
		if firstType != "ListNode" {
			return "", fmt.Errorf("parameter %s must be ListNode, got %q", first.Name, first.Type)
		}
		fmt.Fprintf(&b, "        ListNode arg0 = arenaBuildList(arenaParseInts(%s));\n", listSource)
	} else {
		parse, ok := javaListParser(firstType)
		if !ok {
			return "", fmt.Errorf("parameter %s must be int[], long[] or List<Integer>, got %q", first.Name, first.Type)
		}
		fmt.Fprintf(&b, "        %s arg0 = %s(%s);\n", firstType, parse, listSource)
	}
	if family == TwoArgument {
		second := c.Params[1]
		parse, ok := javaScalarParser(strings.TrimSpace(second.Type))
		if !ok {
			return "", fmt.Errorf("parameter %s must be an integer scalar, got %q", second.Name, second.Type)
		}
		fmt.Fprintf(&b, "        %s arg1 = %s(arenaScalar);\n", strings.TrimSpace(second.Type), parse)
	}

	receiver := c.Receiver
	if receiver == "" {
		receiver = "Solution"
	}
	call := fmt.Sprintf("new %s().%s(%s)", receiver, c.Name, argList(family))
	if c.Static {
		call = fmt.Sprintf("%s.%s(%s)", receiver, c.Name, argList(family))
	}
	if strings.TrimSpace(c.ReturnType) == "void" {
		fmt.Fprintf(&b, "        %s;\n", call)
		b.WriteString("        System.out.println(arenaFormat(arg0));\n")
	} else {
		fmt.Fprintf(&b, "        System.out.println(arenaFormat(%s));\n", call)
	}
	b.WriteString("    }\n}\n")
	return b.String(), nil
}

func javaListParser(t string) (string, bool) {
	switch {
	case t == "int[]":
		return "arenaParseInts", true
	case t == "long[]":
		return "arenaParseLongs", true
	case strings.HasPrefix(t, "List<"):
		return "arenaParseList", true
	}
	return "", false
}

func javaScalarParser(t string) (string, bool) {
	switch t {
	case "int":
		return "Integer.parseInt", true
	case "Integer":
		return "Integer.valueOf", true
	case "long":
		return "Long.parseLong", true
	case "Long":
		return "Long.valueOf", true
	}
	return "", false
}
