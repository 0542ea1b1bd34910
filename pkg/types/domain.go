package types

// PortInfo describes one network input or output.
type PortInfo struct {
	// Port name.
	// example: a
	Name string `json:"name" example:"a"`
	// Element precision.
	// example: FP32
	Precision string `json:"precision" example:"FP32"`
	// Declared dims; -1 marks a dynamic dimension.
	// example: [1,3]
	Shape []int `json:"shape" example:"[1,3]"`
	// Layout tag.
	// example: NC
	Layout string `json:"layout,omitempty" example:"NC"`
}

// NetworkInfo represents a graph description discovered on disk.
type NetworkInfo struct {
	// Network name, unique within the registry.
	// example: add_relu
	Name string `json:"name" example:"add_relu"`
	// Absolute path to the graph description file.
	// example: /srv/graphs/add_relu.yaml
	Path string `json:"path" example:"/srv/graphs/add_relu.yaml"`
	// Number of graph nodes.
	// example: 2
	Nodes int `json:"nodes" example:"2"`
	// Network inputs in parameter order.
	Inputs []PortInfo `json:"inputs"`
	// Network outputs in result order.
	Outputs []PortInfo `json:"outputs"`
}
