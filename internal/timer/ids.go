package timer

import (
	"fmt"
	"math/rand/v2"
)

// Room ids are meant to be read aloud and typed by hand, so they are built
// from short word lists instead of random bytes. Uniqueness is enforced by
// the registry, which regenerates on collision.

var adjectives = []string{
	"happy", "silly", "crazy", "lazy", "fuzzy", "dizzy", "bouncy", "sleepy",
	"grumpy", "snazzy", "wacky", "quirky", "jolly", "cheeky", "funky", "goofy",
	"loopy", "zippy", "perky", "sassy", "clumsy", "sparkly", "wobbly", "giggly",
	"sneaky", "dreamy", "fluffy", "bumpy", "jumpy", "lumpy", "spicy", "crispy",
	"rainy", "sunny", "cloudy", "breezy", "foggy", "snowy", "windy", "stormy",
	"mighty", "tiny", "giant", "swift", "brave", "bold", "wild", "calm",
}

var nouns = []string{
	"cloud", "kitchen", "pancake", "waffle", "muffin", "cookie", "pickle", "noodle",
	"potato", "banana", "taco", "burrito", "pizza", "donut", "cupcake", "sandwich",
	"penguin", "koala", "llama", "panda", "hamster", "bunny", "turtle", "dolphin",
	"octopus", "narwhal", "unicorn", "dragon", "phoenix", "wizard", "ninja", "pirate",
	"rocket", "comet", "planet", "galaxy", "meteor", "rainbow", "thunder", "lightning",
	"mountain", "river", "ocean", "forest", "desert", "valley", "volcano", "island",
	"robot", "spaceship", "castle", "treasure", "crystal", "diamond", "star", "moon",
}

// readableID returns an adjective-noun-number id such as "happy-cloud-42".
func readableID() string {
	return fmt.Sprintf("%s-%s-%d",
		adjectives[rand.IntN(len(adjectives))],
		nouns[rand.IntN(len(nouns))],
		rand.IntN(1000))
}
