package dialect

func init() { Register(textual{name: "Marlin"}) }
