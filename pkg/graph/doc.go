// Package graph defines the mesh graph fed to stress strategies.
// Nodes are mesh vertices carrying their raw (x, y, z) position; every
// triangle contributes its three edges (a,b), (b,c), (c,a). Edges shared
// between triangles are kept as duplicates, so the graph is a multigraph
// whose layout matches the surrogate model's training input.
package graph
