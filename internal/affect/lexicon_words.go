package affect

import "github.com/rcliao/affect-matrix/internal/model"

type va = model.EmotionPrediction

// affectWords maps lowercase words to (valence, arousal).
var affectWords = map[string]va{
	// positive, high arousal
	"amazing":    {Valence: 0.8, Arousal: 0.7},
	"awesome":    {Valence: 0.8, Arousal: 0.6},
	"brave":      {Valence: 0.6, Arousal: 0.5},
	"celebrate":  {Valence: 0.8, Arousal: 0.7},
	"delighted":  {Valence: 0.8, Arousal: 0.6},
	"excited":    {Valence: 0.7, Arousal: 0.8},
	"exciting":   {Valence: 0.7, Arousal: 0.8},
	"fantastic":  {Valence: 0.8, Arousal: 0.6},
	"glad":       {Valence: 0.6, Arousal: 0.3},
	"great":      {Valence: 0.7, Arousal: 0.4},
	"happy":      {Valence: 0.8, Arousal: 0.5},
	"hero":       {Valence: 0.7, Arousal: 0.5},
	"joy":        {Valence: 0.9, Arousal: 0.6},
	"laugh":      {Valence: 0.7, Arousal: 0.6},
	"love":       {Valence: 0.9, Arousal: 0.5},
	"proud":      {Valence: 0.7, Arousal: 0.5},
	"rescued":    {Valence: 0.7, Arousal: 0.5},
	"saved":      {Valence: 0.7, Arousal: 0.5},
	"thrilled":   {Valence: 0.8, Arousal: 0.8},
	"triumph":    {Valence: 0.8, Arousal: 0.7},
	"wonderful":  {Valence: 0.8, Arousal: 0.5},
	"win":        {Valence: 0.7, Arousal: 0.6},
	"won":        {Valence: 0.7, Arousal: 0.6},

	// positive, low arousal
	"calm":       {Valence: 0.4, Arousal: -0.6},
	"comfort":    {Valence: 0.5, Arousal: -0.4},
	"content":    {Valence: 0.5, Arousal: -0.3},
	"friend":     {Valence: 0.6, Arousal: 0.1},
	"friendly":   {Valence: 0.6, Arousal: 0.1},
	"gentle":     {Valence: 0.5, Arousal: -0.4},
	"gift":       {Valence: 0.6, Arousal: 0.3},
	"good":       {Valence: 0.6, Arousal: 0.2},
	"grateful":   {Valence: 0.7, Arousal: 0.1},
	"help":       {Valence: 0.5, Arousal: 0.2},
	"helped":     {Valence: 0.6, Arousal: 0.2},
	"kind":       {Valence: 0.6, Arousal: 0.0},
	"nice":       {Valence: 0.5, Arousal: 0.1},
	"peaceful":   {Valence: 0.6, Arousal: -0.6},
	"please":     {Valence: 0.3, Arousal: 0.0},
	"relaxed":    {Valence: 0.5, Arousal: -0.5},
	"relief":     {Valence: 0.5, Arousal: -0.3},
	"safe":       {Valence: 0.5, Arousal: -0.4},
	"thank":      {Valence: 0.7, Arousal: 0.2},
	"thanks":     {Valence: 0.7, Arousal: 0.2},
	"trust":      {Valence: 0.6, Arousal: 0.0},
	"welcome":    {Valence: 0.6, Arousal: 0.2},

	// negative, high arousal
	"afraid":     {Valence: -0.6, Arousal: 0.7},
	"angry":      {Valence: -0.7, Arousal: 0.8},
	"attack":     {Valence: -0.7, Arousal: 0.8},
	"betray":     {Valence: -0.8, Arousal: 0.6},
	"betrayed":   {Valence: -0.8, Arousal: 0.6},
	"cheat":      {Valence: -0.7, Arousal: 0.5},
	"danger":     {Valence: -0.6, Arousal: 0.8},
	"die":        {Valence: -0.8, Arousal: 0.6},
	"disgusting": {Valence: -0.8, Arousal: 0.5},
	"enemy":      {Valence: -0.6, Arousal: 0.6},
	"fear":       {Valence: -0.7, Arousal: 0.7},
	"fight":      {Valence: -0.4, Arousal: 0.8},
	"furious":    {Valence: -0.8, Arousal: 0.9},
	"hate":       {Valence: -0.9, Arousal: 0.7},
	"horrible":   {Valence: -0.8, Arousal: 0.6},
	"idiot":      {Valence: -0.7, Arousal: 0.5},
	"insult":     {Valence: -0.7, Arousal: 0.6},
	"kill":       {Valence: -0.9, Arousal: 0.8},
	"liar":       {Valence: -0.7, Arousal: 0.5},
	"panic":      {Valence: -0.6, Arousal: 0.9},
	"rage":       {Valence: -0.8, Arousal: 0.9},
	"scared":     {Valence: -0.6, Arousal: 0.7},
	"steal":      {Valence: -0.7, Arousal: 0.5},
	"stole":      {Valence: -0.7, Arousal: 0.5},
	"terrible":   {Valence: -0.8, Arousal: 0.5},
	"thief":      {Valence: -0.7, Arousal: 0.5},
	"threat":     {Valence: -0.7, Arousal: 0.7},
	"ugly":       {Valence: -0.6, Arousal: 0.3},

	// negative, low arousal
	"alone":      {Valence: -0.5, Arousal: -0.4},
	"bad":        {Valence: -0.6, Arousal: 0.2},
	"bored":      {Valence: -0.4, Arousal: -0.6},
	"boring":     {Valence: -0.4, Arousal: -0.6},
	"dismal":     {Valence: -0.6, Arousal: -0.3},
	"gloomy":     {Valence: -0.5, Arousal: -0.4},
	"grief":      {Valence: -0.8, Arousal: -0.2},
	"lonely":     {Valence: -0.6, Arousal: -0.4},
	"lost":       {Valence: -0.5, Arousal: -0.1},
	"miserable":  {Valence: -0.8, Arousal: -0.2},
	"poor":       {Valence: -0.4, Arousal: -0.2},
	"sad":        {Valence: -0.7, Arousal: -0.3},
	"sick":       {Valence: -0.5, Arousal: -0.3},
	"sorry":      {Valence: -0.3, Arousal: -0.2},
	"tired":      {Valence: -0.3, Arousal: -0.7},
	"weak":       {Valence: -0.4, Arousal: -0.4},
	"weary":      {Valence: -0.4, Arousal: -0.6},
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "nobody": true,
	"hardly": true, "don't": true, "dont": true, "doesn't": true, "didn't": true,
	"isn't": true, "wasn't": true, "aren't": true, "can't": true, "cannot": true,
	"won't": true, "wouldn't": true, "shouldn't": true,
}

var intensifiers = map[string]float64{
	"very":       1.4,
	"really":     1.3,
	"so":         1.3,
	"extremely":  1.7,
	"incredibly": 1.6,
	"totally":    1.4,
	"absolutely": 1.5,
	"truly":      1.3,
	"slightly":   0.6,
	"somewhat":   0.7,
	"barely":     0.5,
	"little":     0.7,
}
