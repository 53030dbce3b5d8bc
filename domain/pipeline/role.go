package pipeline

// Role is the closed set of node roles the patcher understands.
type Role int

const (
	RoleOther Role = iota
	RoleTextEncoder
	RoleSampler
	RoleLatentSize
	RoleAdapterLoader
)

// Class types recognised per role.
var (
	TextEncoderClasses   = []string{"CLIPTextEncode"}
	SamplerClasses       = []string{"KSampler", "KSamplerAdvanced", "SamplerCustom"}
	LatentSizeClasses    = []string{"EmptyLatentImage", "EmptySD3LatentImage", "EmptyFluxLatentImage"}
	AdapterLoaderClasses = []string{"LoraLoader"}
)

var roleByClass = func() map[string]Role {
	m := make(map[string]Role)
	for _, c := range TextEncoderClasses {
		m[c] = RoleTextEncoder
	}
	for _, c := range SamplerClasses {
		m[c] = RoleSampler
	}
	for _, c := range LatentSizeClasses {
		m[c] = RoleLatentSize
	}
	for _, c := range AdapterLoaderClasses {
		m[c] = RoleAdapterLoader
	}
	return m
}()

// RoleOf classifies a class type.
func RoleOf(classType string) Role {
	if r, ok := roleByClass[classType]; ok {
		return r
	}
	return RoleOther
}

func (r Role) String() string {
	switch r {
	case RoleTextEncoder:
		return "text_encoder"
	case RoleSampler:
		return "sampler"
	case RoleLatentSize:
		return "latent_size"
	case RoleAdapterLoader:
		return "adapter_loader"
	default:
		return "other"
	}
}
