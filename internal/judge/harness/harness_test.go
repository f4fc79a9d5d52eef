package harness

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateCppFreeFunction(t *testing.T) {
	src := "int sum(vector<int>& nums) {\n    int s = 0;\n    for (int x : nums) s += x;\n    return s;\n}\n"
	prog, err := Generate(Request{Source: src, Language: CPP, Tags: []string{"array"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !prog.Wrapped || prog.Family != SingleArray {
		t.Fatalf("unexpected program: wrapped=%v family=%s", prog.Wrapped, prog.Family)
	}
	for _, want := range []string{
		"#include <bits/stdc++.h>",
		"struct ListNode",
		src,
		"vector<int> arg0 = arenaParseList<int>(line);",
		"auto result = sum(arg0);",
		"cout << arenaFormat(result)",
	} {
		if !strings.Contains(prog.Source, want) {
			t.Fatalf("generated source missing %q:\n%s", want, prog.Source)
		}
	}
	if strings.Index(prog.Source, "struct ListNode") > strings.Index(prog.Source, "int sum(") {
		t.Fatalf("ListNode must be declared before the candidate")
	}
}

func TestGenerateCppTwoArgumentMethod(t *testing.T) {
	src := `class Solution {
public:
    vector<int> twoSum(vector<int>& nums, int target) {
        unordered_map<int, int> seen;
        for (int i = 0; i < (int)nums.size(); ++i) {
            auto it = seen.find(target - nums[i]);
            if (it != seen.end()) return {it->second, i};
            seen[nums[i]] = i;
        }
        return {};
    }
};`
	prog, err := Generate(Request{Source: src, Language: CPP, Tags: []string{"array", "hash-table"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Family != TwoArgument {
		t.Fatalf("expected two-argument family, got %s", prog.Family)
	}
	if prog.Callable.Name != "twoSum" || prog.Callable.Receiver != "Solution" {
		t.Fatalf("unexpected callable: %+v", prog.Callable)
	}
	for _, want := range []string{
		"arenaSplitArgs(line, arenaList, arenaScalar);",
		"int arg1{};",
		"Solution arenaSolution;",
		"auto result = arenaSolution.twoSum(arg0, arg1);",
	} {
		if !strings.Contains(prog.Source, want) {
			t.Fatalf("generated source missing %q:\n%s", want, prog.Source)
		}
	}
}

func TestGenerateCppPrefersSolutionOverHelpers(t *testing.T) {
	src := `int helper(int x) { return x * 2; }
class Solution {
    int hidden(vector<int>& a) { return 0; }
public:
    int maxValue(vector<int>& a) { return helper(a[0]); }
};`
	prog, err := Generate(Request{Source: src, Language: CPP})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Callable.Name != "maxValue" {
		t.Fatalf("expected maxValue, got %s", prog.Callable.Name)
	}
}

func TestGenerateCppVoidPrintsArgument(t *testing.T) {
	src := "void sortIt(vector<int>& nums) { sort(nums.begin(), nums.end()); }"
	prog, err := Generate(Request{Source: src, Language: CPP, Tags: []string{"sorting"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(prog.Source, "sortIt(arg0);") || !strings.Contains(prog.Source, "arenaFormat(arg0)") {
		t.Fatalf("void callable should print its argument:\n%s", prog.Source)
	}
}

func TestGenerateCppLinkedList(t *testing.T) {
	src := `struct ListNode {
    int val;
    ListNode *next;
    ListNode(int x) : val(x), next(nullptr) {}
};
class Solution {
public:
    ListNode* reverseList(ListNode* head) {
        ListNode* prev = nullptr;
        while (head) { ListNode* n = head->next; head->next = prev; prev = head; head = n; }
        return prev;
    }
};`
	prog, err := Generate(Request{Source: src, Language: CPP, Tags: []string{"linked-list"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Family != LinkedList {
		t.Fatalf("expected linked-list family, got %s", prog.Family)
	}
	if strings.Count(prog.Source, "struct ListNode") != 1 {
		t.Fatalf("ListNode should not be redefined:\n%s", prog.Source)
	}
	if !strings.Contains(prog.Source, "ListNode* arg0 = arenaBuildList(arenaParseList<int>(line));") {
		t.Fatalf("expected linked list construction:\n%s", prog.Source)
	}
}

func TestGenerateJavaSolution(t *testing.T) {
	src := `import java.util.HashMap;

public class Solution {
    private int unused(int x) { return x; }
    public int[] twoSum(int[] nums, int target) {
        HashMap<Integer, Integer> seen = new HashMap<>();
        for (int i = 0; i < nums.length; i++) {
            Integer j = seen.get(target - nums[i]);
            if (j != null) return new int[]{j, i};
            seen.put(nums[i], i);
        }
        return new int[0];
    }
}`
	prog, err := Generate(Request{Source: src, Language: Java, Tags: []string{"hash-table"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Callable.Name != "twoSum" {
		t.Fatalf("expected twoSum, got %s", prog.Callable.Name)
	}
	if strings.Contains(prog.Source, "public class Solution") {
		t.Fatalf("candidate class should not stay public:\n%s", prog.Source)
	}
	if !strings.HasPrefix(prog.Source, "import java.io.*;") {
		t.Fatalf("imports must come first:\n%s", prog.Source)
	}
	for _, want := range []string{
		"import java.util.HashMap;",
		"public class Main",
		"int[] arg0 = arenaParseInts(arenaList);",
		"int arg1 = Integer.parseInt(arenaScalar);",
		"System.out.println(arenaFormat(new Solution().twoSum(arg0, arg1)));",
	} {
		if !strings.Contains(prog.Source, want) {
			t.Fatalf("generated source missing %q:\n%s", want, prog.Source)
		}
	}
}

func TestGenerateJavaBareMethodIsWrapped(t *testing.T) {
	src := "public static int total(int[] nums) {\n    int s = 0;\n    for (int x : nums) s += x;\n    return s;\n}"
	prog, err := Generate(Request{Source: src, Language: Java})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Callable.Receiver != "Solution" || !prog.Callable.Static {
		t.Fatalf("unexpected callable: %+v", prog.Callable)
	}
	if !strings.Contains(prog.Source, "class Solution {") {
		t.Fatalf("expected wrapping class:\n%s", prog.Source)
	}
	if !strings.Contains(prog.Source, "Solution.total(arg0)") {
		t.Fatalf("static method should be called on the class:\n%s", prog.Source)
	}
}

func TestGeneratePythonMethod(t *testing.T) {
	src := `class Solution:
    def _helper(self, x):
        return x

    def containsDuplicate(self, nums: List[int]) -> bool:
        return len(set(nums)) != len(nums)
`
	prog, err := Generate(Request{Source: src, Language: Python})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Callable.Name != "containsDuplicate" || len(prog.Callable.Params) != 1 {
		t.Fatalf("unexpected callable: %+v", prog.Callable)
	}
	if prog.Callable.ReturnType != "bool" {
		t.Fatalf("unexpected return type %q", prog.Callable.ReturnType)
	}
	if strings.Index(prog.Source, "from typing import *") > strings.Index(prog.Source, "class Solution") {
		t.Fatalf("typing import must precede the candidate")
	}
	for _, want := range []string{
		`json.loads("[" + sys.stdin.readline().strip() + "]")`,
		"_arena_result = Solution().containsDuplicate(*_arena_args)",
		"print(_arena_format(_arena_result))",
	} {
		if !strings.Contains(prog.Source, want) {
			t.Fatalf("generated source missing %q:\n%s", want, prog.Source)
		}
	}
}

func TestGeneratePythonLinkedListFunction(t *testing.T) {
	src := `def middle(head):
    slow = fast = head
    while fast and fast.next:
        slow, fast = slow.next, fast.next.next
    return slow
`
	prog, err := Generate(Request{Source: src, Language: Python, Tags: []string{"Linked-List"}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if prog.Family != LinkedList {
		t.Fatalf("expected linked-list family, got %s", prog.Family)
	}
	if !strings.Contains(prog.Source, "_arena_args[0] = _arena_build_list(_arena_args[0])") {
		t.Fatalf("expected list construction:\n%s", prog.Source)
	}
	if !strings.Contains(prog.Source, "_arena_result = middle(*_arena_args)") {
		t.Fatalf("expected free function call:\n%s", prog.Source)
	}
}

func TestGenerateKeepsExistingEntryPoint(t *testing.T) {
	cases := []struct {
		name string
		lang Language
		src  string
	}{
		{name: "cpp", lang: CPP, src: "#include <iostream>\nint main() { std::cout << 1; }\n"},
		{name: "java", lang: Java, src: "public class Main { public static void main(String[] a) { System.out.println(1); } }"},
		{name: "python", lang: Python, src: "def f():\n    return 1\n\nif __name__ == '__main__':\n    print(f())\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Generate(Request{Source: tc.src, Language: tc.lang})
			if err != nil {
				t.Fatalf("generate failed: %v", err)
			}
			if prog.Wrapped || prog.Source != tc.src {
				t.Fatalf("source with entry point must pass through unchanged")
			}
		})
	}
}

func TestGenerateIgnoresEntryPointInComments(t *testing.T) {
	src := "// int main() is added by the judge\nint first(vector<int>& a) { return a[0]; }"
	prog, err := Generate(Request{Source: src, Language: CPP})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !prog.Wrapped {
		t.Fatalf("comment must not count as an entry point")
	}
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{name: "no callable", req: Request{Source: "x = 1\n", Language: Python}},
		{name: "empty", req: Request{Source: "   ", Language: CPP}},
		{name: "unsupported", req: Request{Source: "fn main() {}", Language: Language("rust")}},
		{name: "arity", req: Request{Source: "int f(vector<int>& a, int b, int c) { return 0; }", Language: CPP}},
		{name: "linked list arity", req: Request{Source: "def f(a, b):\n    return a\n", Language: Python, Tags: []string{"linked-list"}}},
		{name: "cpp pointer array", req: Request{Source: "int f(int* a) { return a[0]; }", Language: CPP}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(tc.req)
			var herr *HarnessError
			if !errors.As(err, &herr) {
				t.Fatalf("expected HarnessError, got %v", err)
			}
		})
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	req := Request{Source: "def f(nums, k):\n    return nums[k]\n", Language: Python, Tags: []string{"array"}}
	a, err := Generate(req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, _ := Generate(req)
	if a.Source != b.Source {
		t.Fatalf("same request produced different programs")
	}
	if a.Family != TwoArgument {
		t.Fatalf("two parameters should select two-argument family, got %s", a.Family)
	}
}

func TestGeneratePythonPicksEntryOverHelpers(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{
			name: "helper after entry",
			src: `def maxValue(nums):
    return best(nums, 0)

def best(nums, i):
    if i == len(nums):
        return 0
    return max(nums[i], best(nums, i + 1))
`,
		},
		{
			name: "helper before entry",
			src: `def best(nums, i):
    return max(nums[i:]) if nums[i:] else 0

def maxValue(nums):
    return best(nums, 0)
`,
		},
		{
			name: "recursive entry with helper",
			src: `def maxValue(nums):
    if len(nums) == 1:
        return pick(nums[0], nums[0])
    return pick(nums[0], maxValue(nums[1:]))

def pick(a, b):
    return a if a > b else b
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Generate(Request{Source: tc.src, Language: Python, Tags: []string{"array"}})
			if err != nil {
				t.Fatalf("generate failed: %v", err)
			}
			if prog.Callable.Name != "maxValue" || len(prog.Callable.Params) != 1 {
				t.Fatalf("unexpected callable: %+v", prog.Callable)
			}
			if !strings.Contains(prog.Source, "_arena_result = maxValue(*_arena_args)") {
				t.Fatalf("expected entry call:\n%s", prog.Source)
			}
		})
	}
}
