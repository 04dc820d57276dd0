// Package treefile reads tree documents from disk.
//
// A document names a tree and lists its nodes, either flat with parentId
// links or nested under "children". YAML, JSON and CUE files are accepted.
// Every document is unified with the embedded #Document schema before it
// is turned into model nodes, so a malformed file fails with a position
// instead of half-loading.
//
//	tree: roof
//	nodes:
//	  - id: root
//	    label: Roof
//	    children:
//	      - id: area
//	        formula:
//	          tokens: ["@value.width", "*", "@value.length"]
//
// Nodes and capacities without an id get a fresh UUID.
package treefile
