package classifier

// DefaultSpecies are birds likely to visit a feeder in central Europe,
// by scientific name. Order is significant: ties resolve to the earlier entry.
var DefaultSpecies = []string{
	"Erithacus rubecula",            // European Robin
	"Parus major",                   // Great Tit
	"Cyanistes caeruleus",           // Blue Tit
	"Passer domesticus",             // House Sparrow
	"Turdus merula",                 // Common Blackbird
	"Fringilla coelebs",             // Common Chaffinch
	"Carduelis carduelis",           // European Goldfinch
	"Sitta europaea",                // Eurasian Nuthatch
	"Pyrrhula pyrrhula",             // Eurasian Bullfinch
	"Chloris chloris",               // European Greenfinch
	"Aegithalos caudatus",           // Long-tailed Tit
	"Dendrocopos major",             // Great Spotted Woodpecker
	"Garrulus glandarius",           // Eurasian Jay
	"Pica pica",                     // Eurasian Magpie
	"Corvus corone",                 // Carrion Crow
	"Sturnus vulgaris",              // Common Starling
	"Columba palumbus",              // Common Wood Pigeon
	"Streptopelia decaocto",         // Eurasian Collared Dove
	"Prunella modularis",            // Dunnock
	"Emberiza citrinella",           // Yellowhammer
	"Spinus spinus",                 // Eurasian Siskin
	"Coccothraustes coccothraustes", // Hawfinch
	"Periparus ater",                // Coal Tit
	"Poecile palustris",             // Marsh Tit
	"Lophophanes cristatus",         // European Crested Tit
	"Certhia brachydactyla",         // Short-toed Treecreeper
	"Regulus regulus",               // Goldcrest
	"Troglodytes troglodytes",       // Eurasian Wren
	"Motacilla alba",                // White Wagtail
	"Phoenicurus ochruros",          // Black Redstart
}
