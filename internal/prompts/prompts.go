package prompts

// ============================================================================
// Vision Prompts
// ============================================================================

// DescribeInstruction is sent alongside every image. It asks for an
// observational description and forbids lead-in phrases so the cleaned output
// can be used directly as an image-generation prompt.
const DescribeInstruction = `Analyze this image and provide a detailed, comprehensive description with maximum observational precision. Focus on:
- Main subjects and objects
- Visual style, colors, lighting
- Composition and perspective
- Mood and atmosphere
- Important details and context

Describe only what is directly observable. Provide only the description without any prefixes like "This image shows" or "The image depicts".`

// ============================================================================
// Boilerplate Prefixes
// ============================================================================

// BoilerplatePrefixes lists lead-in phrases models prepend despite the
// instruction. Order is a priority order: Clean strips only the first match.
var BoilerplatePrefixes = []string{
	"Here's a detailed description of the image:",
	"Here's a detailed description:",
	"This image shows:",
	"This image depicts:",
	"The image shows:",
	"The image depicts:",
	"I can see:",
	"Looking at this image:",
	"In this image:",
}
