package bot

import "fmt"

// LowConfidenceNote is appended to answers scoring below the threshold.
const LowConfidenceNote = "\n\n⚠️ Note: I'm not entirely confident about this answer. Please verify the information in the official regulations."

const RateLimitedMessage = "⏳ You're sending questions faster than I can answer them. Please wait a little and try again."

func welcomeMessage(domain string) string {
	return fmt.Sprintf("👋 Welcome to your %s assistant!\n\n"+
		"I can help you with questions about %s. "+
		"Just ask your question, and I'll do my best to provide accurate information "+
		"based on the latest regulations.\n\n"+
		"Example questions:\n"+
		"- What are the requirements for pilot licensing?\n"+
		"- What are the safety regulations for commercial flights?\n"+
		"- What are the procedures for aircraft registration?", domain, domain)
}

func helpMessage(domain string) string {
	return fmt.Sprintf("🤖 How to use me:\n\n"+
		"1. Simply type your question about %s\n"+
		"2. I'll search through the latest regulations and provide an answer\n"+
		"3. If I'm not confident about an answer, I'll let you know\n\n"+
		"Commands:\n"+
		"/start - Start the bot\n"+
		"/help - Show this help message\n"+
		"/update - Force update the knowledge base", domain)
}
